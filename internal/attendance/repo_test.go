package attendance

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"eventattendance/internal/store"
	"eventattendance/internal/testinfra"
)

func newPostgresRepo(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	dsn := testinfra.StartPostgres(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := store.NewDB(ctx, dsn)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Client), db.Client
}

func seedSQL(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("seed %q: %v", query, err)
	}
}

func seedEvent(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	seedSQL(t, db, `INSERT INTO events (event_id, name, event_date, "from", "to") VALUES ($1, $1, $2, $2, $3)`,
		id, windowFrom, windowTo)
}

func seedStudent(t *testing.T, db *sql.DB, htno string) {
	t.Helper()
	seedSQL(t, db, `INSERT INTO students (htno, name, program, batch) VALUES ($1, 'Student ' || $1, 'B.Tech', '2021')`, htno)
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// One container serves every subtest; each subtest uses its own event id.
func TestRepositoryPostgres(t *testing.T) {
	repo, db := newPostgresRepo(t)
	ctx := context.Background()
	seedStudent(t, db, "21A91A0501")
	seedStudent(t, db, "21A91A0502")
	seedSQL(t, db, `INSERT INTO rfid_mappings (rfid_hex, htno) VALUES ('04A1B2C3', '21A91A0501')`)

	t.Run("upsert reports created only for the first write", func(t *testing.T) {
		seedEvent(t, db, "upsert")
		reg, created, err := repo.InsertRegistration(ctx, Registration{HTNO: "21A91A0501", EventID: "upsert", Type: RegTypePre})
		if err != nil || !created {
			t.Fatalf("InsertRegistration = %v, %v", created, err)
		}

		first, created, err := repo.UpsertAttendance(ctx, reg, windowFrom.Add(time.Minute))
		if err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		if !created {
			t.Error("first upsert created = false")
		}
		if !first.Present || first.Moving != DirectionIn || first.RegType != RegTypePre {
			t.Errorf("first record = %+v", first)
		}

		second, created, err := repo.UpsertAttendance(ctx, reg, windowFrom.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		if created {
			t.Error("second upsert created = true")
		}
		if second.ID != first.ID {
			t.Errorf("record id changed: %s -> %s", first.ID, second.ID)
		}
		if !second.MarkedAt.Equal(first.MarkedAt) {
			t.Errorf("marked_at moved: %v -> %v", first.MarkedAt, second.MarkedAt)
		}
		if !second.UpdatedAt.After(first.UpdatedAt) {
			t.Errorf("updated_at not refreshed: %v -> %v", first.UpdatedAt, second.UpdatedAt)
		}

		got, err := repo.GetAttendance(ctx, reg.ID)
		if err != nil || got == nil || got.ID != first.ID {
			t.Fatalf("GetAttendance = %+v, %v", got, err)
		}
	})

	t.Run("upsert restores an OUT record", func(t *testing.T) {
		seedEvent(t, db, "restore")
		reg, _, err := repo.InsertRegistration(ctx, Registration{HTNO: "21A91A0501", EventID: "restore", Type: RegTypeSpot})
		if err != nil {
			t.Fatalf("InsertRegistration: %v", err)
		}
		seedSQL(t, db, `INSERT INTO attendance (att_id, reg_id, htno, reg_type, is_present, moving) VALUES ('att-out', $1, $2, 'spot', TRUE, 'OUT')`,
			reg.ID, reg.HTNO)

		rec, created, err := repo.UpsertAttendance(ctx, reg, windowFrom.Add(time.Minute))
		if err != nil {
			t.Fatalf("UpsertAttendance: %v", err)
		}
		if created || rec.ID != "att-out" || rec.Moving != DirectionIn {
			t.Errorf("rec = %+v created = %v", rec, created)
		}
	})

	t.Run("concurrent upserts keep one record", func(t *testing.T) {
		seedEvent(t, db, "race")
		reg, _, err := repo.InsertRegistration(ctx, Registration{HTNO: "21A91A0501", EventID: "race", Type: RegTypePre})
		if err != nil {
			t.Fatalf("InsertRegistration: %v", err)
		}

		const n = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			creates int
			ids     = map[string]bool{}
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec, created, err := repo.UpsertAttendance(ctx, reg, windowFrom.Add(time.Minute))
				if err != nil {
					t.Errorf("UpsertAttendance: %v", err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[rec.ID] = true
				if created {
					creates++
				}
			}()
		}
		wg.Wait()

		if creates != 1 {
			t.Errorf("creates = %d, want 1", creates)
		}
		if len(ids) != 1 {
			t.Errorf("distinct record ids = %d, want 1", len(ids))
		}
		if c := countRows(t, db, `SELECT COUNT(*) FROM attendance WHERE reg_id = $1`, reg.ID); c != 1 {
			t.Errorf("rows = %d, want 1", c)
		}
	})

	t.Run("duplicate registration returns the existing row", func(t *testing.T) {
		seedEvent(t, db, "dup")
		first, created, err := repo.InsertRegistration(ctx, Registration{HTNO: "21A91A0502", EventID: "dup", Type: RegTypePre})
		if err != nil || !created {
			t.Fatalf("first insert = %v, %v", created, err)
		}

		again, created, err := repo.InsertRegistration(ctx, Registration{HTNO: "21A91A0502", EventID: "dup", Type: RegTypeSpot})
		if err != nil {
			t.Fatalf("second insert: %v", err)
		}
		if created {
			t.Error("second insert created = true")
		}
		if again.ID != first.ID || again.Type != RegTypePre {
			t.Errorf("existing = %+v, want %+v", again, first)
		}
		if c := countRows(t, db, `SELECT COUNT(*) FROM registrations WHERE event_id = 'dup'`); c != 1 {
			t.Errorf("rows = %d, want 1", c)
		}
	})

	t.Run("stats", func(t *testing.T) {
		seedEvent(t, db, "stats")
		seedEvent(t, db, "empty")
		a, _, _ := repo.InsertRegistration(ctx, Registration{HTNO: "21A91A0501", EventID: "stats", Type: RegTypePre})
		b, _, _ := repo.InsertRegistration(ctx, Registration{HTNO: "21A91A0502", EventID: "stats", Type: RegTypeSpot})
		if _, _, err := repo.UpsertAttendance(ctx, a, windowFrom.Add(time.Minute)); err != nil {
			t.Fatalf("UpsertAttendance: %v", err)
		}
		seedSQL(t, db, `INSERT INTO attendance (att_id, reg_id, htno, reg_type, is_present, moving) VALUES ('att-stats-out', $1, $2, 'spot', TRUE, 'OUT')`,
			b.ID, b.HTNO)

		got, err := repo.EventStats(ctx, "stats")
		if err != nil {
			t.Fatalf("EventStats: %v", err)
		}
		want := Stats{TotalRegistrations: 2, TotalAttended: 2, MovingIn: 1, MovingOut: 1}
		if got != want {
			t.Errorf("stats = %+v, want %+v", got, want)
		}

		empty, err := repo.EventStats(ctx, "empty")
		if err != nil {
			t.Fatalf("EventStats(empty): %v", err)
		}
		if empty != (Stats{}) {
			t.Errorf("empty stats = %+v", empty)
		}
	})

	t.Run("lookups return nil for missing rows", func(t *testing.T) {
		if st, err := repo.GetStudent(ctx, "nobody"); err != nil || st != nil {
			t.Errorf("GetStudent = %+v, %v", st, err)
		}
		if e, err := repo.GetEvent(ctx, "nowhere"); err != nil || e != nil {
			t.Errorf("GetEvent = %+v, %v", e, err)
		}
		if m, err := repo.GetRFIDMapping(ctx, "00000000"); err != nil || m != nil {
			t.Errorf("GetRFIDMapping = %+v, %v", m, err)
		}
		if r, err := repo.GetAttendance(ctx, "missing"); err != nil || r != nil {
			t.Errorf("GetAttendance = %+v, %v", r, err)
		}
	})

	t.Run("service check-in over postgres", func(t *testing.T) {
		seedEvent(t, db, "svc")
		if _, _, err := repo.InsertRegistration(ctx, Registration{HTNO: "21A91A0501", EventID: "svc", Type: RegTypePre}); err != nil {
			t.Fatalf("InsertRegistration: %v", err)
		}
		now := windowFrom.Add(30 * time.Minute)
		svc := NewService(repo, WithClock(func() time.Time { return now }))

		out, err := svc.CheckInDevice(ctx, "svc", "04A1B2C3")
		if err != nil || out.Status != StatusPresent {
			t.Fatalf("first check-in = %+v, %v", out, err)
		}
		out, err = svc.CheckInDevice(ctx, "svc", "04A1B2C3")
		if err != nil || out.Status != StatusAlreadyPresent {
			t.Fatalf("second check-in = %+v, %v", out, err)
		}

		now = windowTo.Add(time.Second)
		out, err = svc.CheckInManual(ctx, "svc", "21A91A0501")
		if err != nil || out.Status != StatusOutsideWindow {
			t.Fatalf("late check-in = %+v, %v", out, err)
		}
	})
}
