package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is the directory and ledger the service reads and writes.
// Getters return nil with a nil error when the row does not exist.
type Store interface {
	ListEvents(ctx context.Context) ([]Event, error)
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	GetStudent(ctx context.Context, htno string) (*Student, error)
	GetRFIDMapping(ctx context.Context, rfidHex string) (*RFIDMapping, error)
	// FindRegistrations returns every registration for the pair; callers expect at most one.
	FindRegistrations(ctx context.Context, htno, eventID string) ([]Registration, error)
	// InsertRegistration inserts reg unless the pair is already registered, in which case
	// it returns the existing row and created=false.
	InsertRegistration(ctx context.Context, reg Registration) (stored Registration, created bool, err error)
	GetAttendance(ctx context.Context, registrationID string) (*Record, error)
	// UpsertAttendance atomically marks the registration present and moving IN.
	UpsertAttendance(ctx context.Context, reg Registration, at time.Time) (rec Record, created bool, err error)
	EventStats(ctx context.Context, eventID string) (Stats, error)
}

// Service coordinates identity, registration, window and ledger checks.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for the event window gate.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service backed by a store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListEvents returns all events ordered by date.
func (s *Service) ListEvents(ctx context.Context) ([]Event, error) {
	return s.store.ListEvents(ctx)
}

// ResolveByRFID maps a badge token to its student.
func (s *Service) ResolveByRFID(ctx context.Context, rfidHex string) (Student, error) {
	if rfidHex == "" {
		return Student{}, ErrMissingParam
	}
	m, err := s.store.GetRFIDMapping(ctx, rfidHex)
	if err != nil {
		return Student{}, fmt.Errorf("lookup rfid: %w", err)
	}
	if m == nil {
		return Student{}, ErrUnknownDevice
	}
	st, err := s.store.GetStudent(ctx, m.HTNO)
	if err != nil {
		return Student{}, fmt.Errorf("lookup student: %w", err)
	}
	if st == nil {
		return Student{}, integrityFault(ErrUnknownStudent, "rfid %s maps to missing student %s", rfidHex, m.HTNO)
	}
	return *st, nil
}

// ResolveByHTNO looks a student up directly.
func (s *Service) ResolveByHTNO(ctx context.Context, htno string) (Student, error) {
	if htno == "" {
		return Student{}, ErrMissingParam
	}
	st, err := s.store.GetStudent(ctx, htno)
	if err != nil {
		return Student{}, fmt.Errorf("lookup student: %w", err)
	}
	if st == nil {
		return Student{}, ErrUnknownStudent
	}
	return *st, nil
}

// FindRegistration returns the student's registration for the event, or nil if none.
func (s *Service) FindRegistration(ctx context.Context, htno, eventID string) (*Registration, error) {
	regs, err := s.store.FindRegistrations(ctx, htno, eventID)
	if err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}
	switch len(regs) {
	case 0:
		return nil, nil
	case 1:
		return &regs[0], nil
	}
	return nil, fmt.Errorf("%w: %d registrations for student %s at event %s", ErrDataIntegrity, len(regs), htno, eventID)
}

// CheckInDevice records attendance for a badge scan.
func (s *Service) CheckInDevice(ctx context.Context, eventID, rfidHex string) (Outcome, error) {
	if eventID == "" || rfidHex == "" {
		return Outcome{}, ErrMissingParam
	}
	st, err := s.ResolveByRFID(ctx, rfidHex)
	if err != nil {
		return Outcome{}, err
	}
	return s.checkIn(ctx, eventID, st)
}

// CheckInManual records attendance for a typed hall ticket number.
func (s *Service) CheckInManual(ctx context.Context, eventID, htno string) (Outcome, error) {
	if eventID == "" || htno == "" {
		return Outcome{}, ErrMissingParam
	}
	st, err := s.ResolveByHTNO(ctx, htno)
	if err != nil {
		return Outcome{}, err
	}
	return s.checkIn(ctx, eventID, st)
}

func (s *Service) checkIn(ctx context.Context, eventID string, st Student) (Outcome, error) {
	out := Outcome{Student: st, EventID: eventID}

	reg, err := s.FindRegistration(ctx, st.HTNO, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if reg == nil {
		out.Status = StatusNotRegistered
		return out, nil
	}
	out.Registered = true
	out.RegType = reg.Type

	evt, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get event: %w", err)
	}
	if evt == nil {
		return Outcome{}, integrityFault(ErrEventNotFound, "registration %s references missing event %s", reg.ID, eventID)
	}

	now := s.now().UTC()
	if !evt.Active(now) {
		out.Status = StatusOutsideWindow
		return out, nil
	}

	rec, created, err := s.store.UpsertAttendance(ctx, *reg, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert attendance: %w", err)
	}
	out.Record = &rec
	if created {
		out.Status = StatusPresent
	} else {
		out.Status = StatusAlreadyPresent
	}
	return out, nil
}

// StudentInfo reports a student's registration and check-in state for an event.
func (s *Service) StudentInfo(ctx context.Context, eventID, htno string) (StudentInfo, error) {
	if eventID == "" || htno == "" {
		return StudentInfo{}, ErrMissingParam
	}
	st, err := s.ResolveByHTNO(ctx, htno)
	if err != nil {
		return StudentInfo{}, err
	}
	info := StudentInfo{Student: st}
	reg, err := s.FindRegistration(ctx, htno, eventID)
	if err != nil {
		return StudentInfo{}, err
	}
	if reg == nil {
		return info, nil
	}
	info.Registered = true
	info.RegType = reg.Type

	rec, err := s.store.GetAttendance(ctx, reg.ID)
	if err != nil {
		return StudentInfo{}, fmt.Errorf("get attendance: %w", err)
	}
	info.CheckedIn = rec != nil && rec.Present
	return info, nil
}

// Stats returns current counts for an event.
func (s *Service) Stats(ctx context.Context, eventID string) (Stats, error) {
	if eventID == "" {
		return Stats{}, ErrMissingParam
	}
	stats, err := s.store.EventStats(ctx, eventID)
	if err != nil {
		return Stats{}, fmt.Errorf("event stats: %w", err)
	}
	stats.EventID = eventID
	return stats, nil
}

// SpotRegister registers a student for an event at the door.
func (s *Service) SpotRegister(ctx context.Context, htno, eventID string, regType RegType) (Registration, error) {
	if htno == "" || eventID == "" || regType == "" {
		return Registration{}, ErrMissingParam
	}
	if _, err := s.ResolveByHTNO(ctx, htno); err != nil {
		return Registration{}, err
	}
	evt, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return Registration{}, fmt.Errorf("get event: %w", err)
	}
	if evt == nil {
		return Registration{}, ErrEventNotFound
	}

	stored, created, err := s.store.InsertRegistration(ctx, Registration{HTNO: htno, EventID: eventID, Type: regType})
	if err != nil {
		return Registration{}, fmt.Errorf("insert registration: %w", err)
	}
	if !created {
		return Registration{}, &AlreadyRegisteredError{Existing: stored}
	}
	return stored, nil
}

// IsIntegrityFault reports whether err stems from inconsistent directory data.
func IsIntegrityFault(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}
