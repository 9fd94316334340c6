package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists the directory and attendance ledger in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// ListEvents returns events ordered by event date.
func (r *Repository) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, name, event_date, "from", "to"
		FROM events
		ORDER BY event_date ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Date, &e.From, &e.To); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// GetEvent returns a single event by id.
func (r *Repository) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT event_id, name, event_date, "from", "to"
		FROM events WHERE event_id = $1
	`, eventID)
	var e Event
	if err := row.Scan(&e.ID, &e.Name, &e.Date, &e.From, &e.To); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// GetStudent returns a student by hall ticket number.
func (r *Repository) GetStudent(ctx context.Context, htno string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT htno, name, program, batch
		FROM students WHERE htno = $1
	`, htno)
	var st Student
	if err := row.Scan(&st.HTNO, &st.Name, &st.Program, &st.Batch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// GetRFIDMapping returns the student mapped to a badge.
func (r *Repository) GetRFIDMapping(ctx context.Context, rfidHex string) (*RFIDMapping, error) {
	row := r.db.QueryRowContext(ctx, `SELECT rfid_hex, htno FROM rfid_mappings WHERE rfid_hex = $1`, rfidHex)
	var m RFIDMapping
	if err := row.Scan(&m.RFIDHex, &m.HTNO); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// FindRegistrations returns registrations for a (student, event) pair. The unique
// constraint keeps this to one row; LIMIT 2 is enough to detect a violation.
func (r *Repository) FindRegistrations(ctx context.Context, htno, eventID string) ([]Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT reg_id, htno, event_id, reg_type
		FROM registrations
		WHERE htno = $1 AND event_id = $2
		LIMIT 2
	`, htno, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Registration
	for rows.Next() {
		var reg Registration
		if err := rows.Scan(&reg.ID, &reg.HTNO, &reg.EventID, &reg.Type); err != nil {
			return nil, err
		}
		res = append(res, reg)
	}
	return res, rows.Err()
}

// InsertRegistration inserts a registration or returns the existing one for the pair.
func (r *Repository) InsertRegistration(ctx context.Context, reg Registration) (Registration, bool, error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO registrations (reg_id, htno, event_id, reg_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (htno, event_id) DO NOTHING
	`, reg.ID, reg.HTNO, reg.EventID, string(reg.Type))
	if err != nil {
		return Registration{}, false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Registration{}, false, err
	} else if n == 1 {
		return reg, true, nil
	}

	existing, err := r.FindRegistrations(ctx, reg.HTNO, reg.EventID)
	if err != nil {
		return Registration{}, false, err
	}
	if len(existing) == 0 {
		return Registration{}, false, errors.New("registration conflict but no existing row")
	}
	return existing[0], false, nil
}

// GetAttendance returns the ledger row for a registration.
func (r *Repository) GetAttendance(ctx context.Context, registrationID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT att_id, reg_id, htno, reg_type, is_present, moving, marked_at, updated_at
		FROM attendance WHERE reg_id = $1
	`, registrationID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// UpsertAttendance inserts or refreshes the ledger row in one statement. xmax is zero
// only for a freshly inserted tuple, which tells the caller which branch ran.
func (r *Repository) UpsertAttendance(ctx context.Context, reg Registration, at time.Time) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (att_id, reg_id, htno, reg_type, is_present, moving, marked_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $6)
		ON CONFLICT (reg_id) DO UPDATE SET
			is_present = TRUE,
			moving = EXCLUDED.moving,
			updated_at = EXCLUDED.updated_at
		RETURNING att_id, reg_id, htno, reg_type, is_present, moving, marked_at, updated_at, (xmax = 0)
	`, uuid.NewString(), reg.ID, reg.HTNO, string(reg.Type), string(DirectionIn), at)

	var (
		rec     Record
		moving  sql.NullString
		created bool
	)
	if err := row.Scan(&rec.ID, &rec.RegistrationID, &rec.HTNO, &rec.RegType, &rec.Present, &moving, &rec.MarkedAt, &rec.UpdatedAt, &created); err != nil {
		return Record{}, false, err
	}
	rec.Moving = Direction(moving.String)
	return rec, created, nil
}

// EventStats counts registrations and ledger rows for an event in one snapshot.
func (r *Repository) EventStats(ctx context.Context, eventID string) (Stats, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(r.reg_id),
			COUNT(a.att_id) FILTER (WHERE a.is_present),
			COUNT(a.att_id) FILTER (WHERE a.moving = 'IN'),
			COUNT(a.att_id) FILTER (WHERE a.moving = 'OUT')
		FROM registrations r
		LEFT JOIN attendance a ON a.reg_id = r.reg_id
		WHERE r.event_id = $1
	`, eventID)
	var s Stats
	if err := row.Scan(&s.TotalRegistrations, &s.TotalAttended, &s.MovingIn, &s.MovingOut); err != nil {
		return Stats{}, err
	}
	return s, nil
}

func scanRecord(row *sql.Row) (Record, error) {
	var (
		rec    Record
		moving sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.RegistrationID, &rec.HTNO, &rec.RegType, &rec.Present, &moving, &rec.MarkedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Moving = Direction(moving.String)
	return rec, nil
}
