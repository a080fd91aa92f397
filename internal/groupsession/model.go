package groupsession

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound           = apperror.New(http.StatusNotFound, apperror.KindResourceState, "group session not found")
	ErrSessionFull        = apperror.New(http.StatusConflict, apperror.KindConflict, "group session is full")
	ErrRegistrationClosed = apperror.New(http.StatusConflict, apperror.KindConflict, "registration for this session is closed")
	ErrAlreadyJoined      = apperror.New(http.StatusConflict, apperror.KindConflict, "already registered for this session")
	ErrInvalidCapacity    = apperror.New(http.StatusBadRequest, apperror.KindValidation, "max students must be positive")
)

type Type string

const (
	TypePublic  Type = "public"
	TypePrivate Type = "private"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
)

// Session is a calendar slot shared by several student seats.
// ParticipantCount always equals len(ParticipantIDs) and never exceeds MaxStudents.
type Session struct {
	ID               string
	TutorID          string
	ProductID        string
	Title            string
	Type             Type
	Status           Status
	Start            time.Time
	End              time.Time
	DurationMinutes  int
	MaxStudents      int
	ParticipantCount int
	ParticipantIDs   []string
	LeaderID         *string // private sessions only
	CreatedBy        string
	CreatedAt        time.Time
}

// ParticipantKey identifies a seat holder. Invited members without an
// account are keyed by their email.
func ParticipantKey(userID, email string) string {
	if userID != "" {
		return userID
	}
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}

func (s *Session) IsFull() bool {
	return s.ParticipantCount >= s.MaxStudents
}

func (s *Session) HasParticipant(key string) bool {
	return slices.Contains(s.ParticipantIDs, key)
}

// CheckOpen reports whether a new seat may still be taken at now.
func (s *Session) CheckOpen(now time.Time) error {
	if s.Status == StatusCancelled {
		return ErrRegistrationClosed
	}
	if s.IsFull() {
		return ErrSessionFull
	}
	if !now.Before(s.Start) {
		return ErrRegistrationClosed
	}
	return nil
}

// AddParticipant adds key to the seat set. Adding a present key is a no-op
// and reports false.
func (s *Session) AddParticipant(key string) (bool, error) {
	if s.HasParticipant(key) {
		return false, nil
	}
	if s.IsFull() {
		return false, ErrSessionFull
	}
	s.ParticipantIDs = append(s.ParticipantIDs, key)
	s.ParticipantCount = len(s.ParticipantIDs)
	return true, nil
}

// Overlaps reports whether the session intersects the half-open range [start, end).
func (s *Session) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && s.End.After(start)
}

// Filter defines parameters for listing sessions.
type Filter struct {
	Type     Type
	Status   Status
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
