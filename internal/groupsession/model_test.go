package groupsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AddParticipant(t *testing.T) {
	s := &Session{MaxStudents: 2}

	added, err := s.AddParticipant("u1")
	require.NoError(t, err)
	assert.True(t, added)

	// Set semantics: adding the same key twice does not count twice.
	added, err = s.AddParticipant("u1")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, s.ParticipantCount)

	_, err = s.AddParticipant("u2")
	require.NoError(t, err)
	assert.True(t, s.IsFull())

	_, err = s.AddParticipant("u3")
	assert.ErrorIs(t, err, ErrSessionFull)
	assert.Equal(t, 2, s.ParticipantCount)
	assert.Len(t, s.ParticipantIDs, s.ParticipantCount)
}

func TestSession_CheckOpen(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	start := now.Add(2 * time.Hour)

	tests := []struct {
		name    string
		session Session
		wantErr error
	}{
		{"Open", Session{Status: StatusScheduled, Start: start, MaxStudents: 6, ParticipantCount: 5}, nil},
		{"Full", Session{Status: StatusScheduled, Start: start, MaxStudents: 6, ParticipantCount: 6}, ErrSessionFull},
		{"Started", Session{Status: StatusScheduled, Start: now, MaxStudents: 6}, ErrRegistrationClosed},
		{"Cancelled", Session{Status: StatusCancelled, Start: start, MaxStudents: 6}, ErrRegistrationClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.CheckOpen(now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestParticipantKey(t *testing.T) {
	assert.Equal(t, "u1", ParticipantKey("u1", "a@b.c"))
	assert.Equal(t, "email:friend@example.com", ParticipantKey("", " Friend@Example.com "))
}
