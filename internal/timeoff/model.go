package timeoff

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound     = apperror.New(http.StatusNotFound, apperror.KindResourceState, "time-off block not found")
	ErrInvalidRange = apperror.New(http.StatusBadRequest, apperror.KindValidation, "time-off end must be after start")
)

// Block is an interval during which the tutor takes no lessons.
type Block struct {
	ID        string
	TutorID   string
	Start     time.Time
	End       time.Time
	Note      string
	CreatedBy string
	CreatedAt time.Time
}

// Overlaps reports whether the block intersects the half-open range [start, end).
func (b *Block) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}
