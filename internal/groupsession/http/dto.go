package http

import (
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/request"
)

type ListGroupSessionsRequest struct {
	request.ListParams
	Type   string     `form:"type" binding:"omitempty,oneof=public private"`
	Status string     `form:"status" binding:"omitempty,oneof=scheduled cancelled"`
	From   *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type GroupSessionResponse struct {
	ID               string    `json:"id"`
	TutorID          string    `json:"tutor_id"`
	ProductID        string    `json:"product_id"`
	Title            string    `json:"title"`
	Type             string    `json:"type"`
	Status           string    `json:"status"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	DurationMinutes  int       `json:"duration_minutes"`
	MaxStudents      int       `json:"max_students"`
	ParticipantCount int       `json:"participant_count"`
	SeatsLeft        int       `json:"seats_left"`
	LeaderID         *string   `json:"leader_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewResponse(s *groupsession.Session) GroupSessionResponse {
	return GroupSessionResponse{
		ID:               s.ID,
		TutorID:          s.TutorID,
		ProductID:        s.ProductID,
		Title:            s.Title,
		Type:             string(s.Type),
		Status:           string(s.Status),
		StartTime:        s.Start,
		EndTime:          s.End,
		DurationMinutes:  s.DurationMinutes,
		MaxStudents:      s.MaxStudents,
		ParticipantCount: s.ParticipantCount,
		SeatsLeft:        max(s.MaxStudents-s.ParticipantCount, 0),
		LeaderID:         s.LeaderID,
		CreatedAt:        s.CreatedAt,
	}
}
