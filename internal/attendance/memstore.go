package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded Store for dev and tests.
type MemoryStore struct {
	mu       sync.Mutex
	students map[string]Student
	rfid     map[string]string
	events   map[string]Event
	regs     map[string]Registration // by reg id
	records  map[string]Record       // by reg id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students: make(map[string]Student),
		rfid:     make(map[string]string),
		events:   make(map[string]Event),
		regs:     make(map[string]Registration),
		records:  make(map[string]Record),
	}
}

// PutStudent adds or replaces a student.
func (m *MemoryStore) PutStudent(st Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[st.HTNO] = st
}

// PutRFID maps a badge token to a hall ticket number.
func (m *MemoryStore) PutRFID(rfidHex, htno string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rfid[rfidHex] = htno
}

// PutEvent adds or replaces an event.
func (m *MemoryStore) PutEvent(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[evt.ID] = evt
}

// PutRegistration stores reg as-is, without the uniqueness check. Seeding only.
func (m *MemoryStore) PutRegistration(reg Registration) Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	m.regs[reg.ID] = reg
	return reg
}

// Records returns a snapshot of every attendance record.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out
}

// Registrations returns a snapshot of every registration.
func (m *MemoryStore) Registrations() []Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Registration, 0, len(m.regs))
	for _, r := range m.regs {
		out = append(out, r)
	}
	return out
}

// SetMoving overwrites the direction of a record. Used to seed OUT rows.
func (m *MemoryStore) SetMoving(registrationID string, present bool, moving Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[registrationID]
	if !ok {
		reg := m.regs[registrationID]
		rec = Record{ID: uuid.NewString(), RegistrationID: reg.ID, HTNO: reg.HTNO, RegType: reg.Type}
	}
	rec.Present = present
	rec.Moving = moving
	m.records[registrationID] = rec
}

func (m *MemoryStore) ListEvents(ctx context.Context) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryStore) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[eventID]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetStudent(ctx context.Context, htno string) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.students[htno]; ok {
		return &st, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetRFIDMapping(ctx context.Context, rfidHex string) (*RFIDMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if htno, ok := m.rfid[rfidHex]; ok {
		return &RFIDMapping{RFIDHex: rfidHex, HTNO: htno}, nil
	}
	return nil, nil
}

func (m *MemoryStore) FindRegistrations(ctx context.Context, htno, eventID string) ([]Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findRegs(htno, eventID), nil
}

func (m *MemoryStore) findRegs(htno, eventID string) []Registration {
	var out []Registration
	for _, r := range m.regs {
		if r.HTNO == htno && r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryStore) InsertRegistration(ctx context.Context, reg Registration) (Registration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.findRegs(reg.HTNO, reg.EventID); len(existing) > 0 {
		return existing[0], false, nil
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	m.regs[reg.ID] = reg
	return reg, true, nil
}

func (m *MemoryStore) GetAttendance(ctx context.Context, registrationID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[registrationID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *MemoryStore) UpsertAttendance(ctx context.Context, reg Registration, at time.Time) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.records[reg.ID]
	if !exists {
		rec = Record{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			HTNO:           reg.HTNO,
			RegType:        reg.Type,
			MarkedAt:       at,
		}
	}
	rec.Present = true
	rec.Moving = DirectionIn
	rec.UpdatedAt = at
	m.records[reg.ID] = rec
	return rec, !exists, nil
}

func (m *MemoryStore) EventStats(ctx context.Context, eventID string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, reg := range m.regs {
		if reg.EventID != eventID {
			continue
		}
		s.TotalRegistrations++
		rec, ok := m.records[reg.ID]
		if !ok {
			continue
		}
		if rec.Present {
			s.TotalAttended++
		}
		switch rec.Moving {
		case DirectionIn:
			s.MovingIn++
		case DirectionOut:
			s.MovingOut++
		}
	}
	return s, nil
}
