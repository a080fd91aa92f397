package http

import (
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/shopspring/decimal"
)

// ProductURI binds the slug path parameter.
type ProductURI struct {
	ID string `uri:"id" binding:"required,max=64"`
}

type ListProductsRequest struct {
	request.ListParams
	Type            string `form:"type" binding:"omitempty,oneof=individual group private-group package"`
	IncludeInactive bool   `form:"include_inactive"`
}

type CreateProductRequest struct {
	ID              string          `json:"id" binding:"required,max=64"`
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	Type            string          `json:"type" binding:"required,oneof=individual group private-group package"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes" binding:"min=0"`
	LessonCount     int             `json:"lesson_count" binding:"min=0"`
	RedeemsFor      *string         `json:"redeems_for"`
}

type UpdateProductRequest struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	Price           *decimal.Decimal `json:"price"`
	DurationMinutes *int             `json:"duration_minutes" binding:"omitempty,min=0"`
	LessonCount     *int             `json:"lesson_count" binding:"omitempty,min=0"`
	RedeemsFor      *string          `json:"redeems_for"`
	IsActive        *bool            `json:"is_active"`
}

type ProductResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Type            string          `json:"type"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes,omitempty"`
	LessonCount     int             `json:"lesson_count,omitempty"`
	RedeemsFor      *string         `json:"redeems_for,omitempty"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewResponse(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Type:            string(p.Type),
		Price:           p.Price,
		DurationMinutes: p.DurationMinutes,
		LessonCount:     p.LessonCount,
		RedeemsFor:      p.RedeemsFor,
		IsActive:        p.IsActive,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
