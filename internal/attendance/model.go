package attendance

import (
	"strings"
	"time"
)

// Student is an enrolled student. HTNO is the hall ticket number.
type Student struct {
	HTNO    string `json:"htno"`
	Name    string `json:"name"`
	Program string `json:"program"`
	Batch   string `json:"batch"`
}

// RFIDMapping links a badge token to a student.
type RFIDMapping struct {
	RFIDHex string
	HTNO    string
}

// Event is a scheduled event with an active check-in window.
type Event struct {
	ID   string    `json:"event_id"`
	Name string    `json:"name"`
	Date time.Time `json:"event_date"`
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Active reports whether t falls inside the event window. Both ends are inclusive.
func (e Event) Active(t time.Time) bool {
	return !t.Before(e.From) && !t.After(e.To)
}

// RegType is the registration category.
type RegType string

const (
	RegTypePre  RegType = "pre-registered"
	RegTypeSpot RegType = "spot"
)

// ParseRegType maps boundary input onto a RegType.
func ParseRegType(s string) (RegType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pre-registered", "pre_registered", "pre", "registered":
		return RegTypePre, nil
	case "spot":
		return RegTypeSpot, nil
	}
	return "", ErrInvalidRegType
}

// Registration is a student's claim to attend an event.
type Registration struct {
	ID      string  `json:"reg_id"`
	HTNO    string  `json:"htno"`
	EventID string  `json:"event_id"`
	Type    RegType `json:"reg_type"`
}

// Direction is the movement tag on an attendance record.
type Direction string

const (
	DirectionUnset Direction = ""
	DirectionIn    Direction = "IN"
	DirectionOut   Direction = "OUT"
)

// Record is the single ledger row for a registration.
type Record struct {
	ID             string    `json:"att_id"`
	RegistrationID string    `json:"reg_id"`
	HTNO           string    `json:"htno"`
	RegType        RegType   `json:"reg_type"`
	Present        bool      `json:"is_present"`
	Moving         Direction `json:"moving"`
	MarkedAt       time.Time `json:"marked_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Status is the outcome reported for a check-in.
type Status string

const (
	StatusNotRegistered  Status = "not registered"
	StatusOutsideWindow  Status = "outside event time"
	StatusPresent        Status = "present"
	StatusAlreadyPresent Status = "already checked in"
)

// Outcome is the result of a check-in attempt.
type Outcome struct {
	Student    Student
	EventID    string
	Registered bool
	RegType    RegType
	Status     Status
	// Record is set only when the ledger was written.
	Record *Record
}

// Wrote reports whether the check-in touched the ledger.
func (o Outcome) Wrote() bool { return o.Record != nil }

// StudentInfo is the read-only view of a student against an event.
type StudentInfo struct {
	Student    Student
	Registered bool
	RegType    RegType
	CheckedIn  bool
}

// Stats summarises the ledger for one event.
type Stats struct {
	EventID            string `json:"event_id"`
	TotalRegistrations int    `json:"total_registrations"`
	TotalAttended      int    `json:"total_attended"`
	MovingIn           int    `json:"moving_in"`
	MovingOut          int    `json:"moving_out"`
}
