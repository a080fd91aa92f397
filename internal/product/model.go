package product

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = apperror.New(http.StatusNotFound, apperror.KindResourceState, "product not found")
	ErrIDRequired          = apperror.New(http.StatusBadRequest, apperror.KindValidation, "product id is required")
	ErrNameRequired        = apperror.New(http.StatusBadRequest, apperror.KindValidation, "product name is required")
	ErrInvalidType         = apperror.New(http.StatusBadRequest, apperror.KindValidation, "invalid product type")
	ErrNegativePrice       = apperror.New(http.StatusBadRequest, apperror.KindValidation, "price must not be negative")
	ErrDurationRequired    = apperror.New(http.StatusBadRequest, apperror.KindValidation, "lesson products need a positive duration")
	ErrLessonCountRequired = apperror.New(http.StatusBadRequest, apperror.KindValidation, "packages need a positive lesson count")
	ErrRedeemsForRequired  = apperror.New(http.StatusBadRequest, apperror.KindValidation, "packages must name the lesson product they redeem for")
	ErrDuplicateID         = apperror.New(http.StatusConflict, apperror.KindConflict, "product id already exists")
)

// Type is the product shape discriminant.
type Type string

const (
	TypeIndividual   Type = "individual"
	TypeGroup        Type = "group"
	TypePrivateGroup Type = "private-group"
	TypePackage      Type = "package"
)

// Valid reports whether t is one of the known product types.
func (t Type) Valid() bool {
	switch t {
	case TypeIndividual, TypeGroup, TypePrivateGroup, TypePackage:
		return true
	}
	return false
}

// Scheduled reports whether bookings of this type occupy calendar time.
func (t Type) Scheduled() bool {
	return t != TypePackage
}

// Shared reports whether bookings of this type are seats in a group session.
func (t Type) Shared() bool {
	return t == TypeGroup || t == TypePrivateGroup
}

// Product is a sellable item of the catalog.
type Product struct {
	ID              string // slug
	Name            string
	Description     string
	Type            Type
	Price           decimal.Decimal
	DurationMinutes int
	LessonCount     int     // packages only
	RedeemsFor      *string // packages only
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration returns the lesson length.
func (p *Product) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// IsFree reports whether the product costs nothing.
func (p *Product) IsFree() bool {
	return p.Price.IsZero()
}

// CreditTarget returns the id of the lesson product a credit of this product's
// type books. Package credits book the product they redeem for. Individual
// and group credits book the product itself. Private group credits cannot be
// redeemed.
func (p *Product) CreditTarget() (string, bool) {
	switch p.Type {
	case TypePackage:
		if p.RedeemsFor == nil || *p.RedeemsFor == "" {
			return "", false
		}
		return *p.RedeemsFor, true
	case TypeIndividual, TypeGroup:
		return p.ID, true
	}
	return "", false
}

// Validate checks the per-type required fields.
func (p *Product) Validate() error {
	if p.ID == "" {
		return ErrIDRequired
	}
	if p.Name == "" {
		return ErrNameRequired
	}
	if !p.Type.Valid() {
		return ErrInvalidType
	}
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}

	switch p.Type {
	case TypePackage:
		if p.LessonCount <= 0 {
			return ErrLessonCountRequired
		}
		if p.RedeemsFor == nil || *p.RedeemsFor == "" {
			return ErrRedeemsForRequired
		}
	default:
		if p.DurationMinutes <= 0 {
			return ErrDurationRequired
		}
	}
	return nil
}

// Filter defines parameters for listing products.
type Filter struct {
	Type       Type
	ActiveOnly bool
	Page       int
	PageSize   int
}
