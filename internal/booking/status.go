package booking

// Status is the closed set of booking lifecycle states.
type Status string

const (
	StatusAwaitingPayment            Status = "awaiting-payment"
	StatusPaymentPendingConfirmation Status = "payment-pending-confirmation"
	StatusConfirmed                  Status = "confirmed"
	StatusInProgress                 Status = "in-progress"
	StatusCompleted                  Status = "completed"
	StatusNoShow                     Status = "no-show"
	StatusCancellationRequested      Status = "cancellation-requested"
	StatusCancelled                  Status = "cancelled"
	StatusCancelledByAdmin           Status = "cancelled-by-admin"
	StatusRefunded                   Status = "refunded"
	StatusCreditIssued               Status = "credit-issued"
	StatusRescheduled                Status = "rescheduled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusAwaitingPayment,
	StatusPaymentPendingConfirmation,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusNoShow,
	StatusCancellationRequested,
	StatusCancelled,
	StatusCancelledByAdmin,
	StatusRefunded,
	StatusCreditIssued,
	StatusRescheduled,
}

// BlockingStatuses occupy calendar time.
var BlockingStatuses = []Status{
	StatusConfirmed,
	StatusAwaitingPayment,
	StatusPaymentPendingConfirmation,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Blocking reports whether a booking in this status holds its slot.
func (s Status) Blocking() bool {
	switch s {
	case StatusConfirmed, StatusAwaitingPayment, StatusPaymentPendingConfirmation:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusCancelledByAdmin, StatusRefunded,
		StatusCreditIssued, StatusRescheduled, StatusNoShow:
		return true
	}
	return false
}

// Role is who is asking for a transition.
type Role int

const (
	RoleStudent Role = iota
	RoleAdmin
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "student"
}

type edge struct {
	from Status
	to   Status
}

// transitions is the complete table of allowed moves and who may make them.
// Moves to cancelled-by-admin and no-show are allowed from every non-terminal
// state and are handled in CanTransition.
var transitions = map[edge]Role{
	{StatusPaymentPendingConfirmation, StatusConfirmed}:       RoleAdmin,
	{StatusAwaitingPayment, StatusConfirmed}:                  RoleAdmin,
	{StatusAwaitingPayment, StatusPaymentPendingConfirmation}: RoleStudent,
	{StatusConfirmed, StatusInProgress}:                       RoleAdmin,
	{StatusInProgress, StatusCompleted}:                       RoleAdmin,
	{StatusConfirmed, StatusCancellationRequested}:            RoleStudent,
	{StatusAwaitingPayment, StatusCancellationRequested}:      RoleStudent,
	{StatusCancellationRequested, StatusRefunded}:             RoleAdmin,
	{StatusCancellationRequested, StatusCreditIssued}:         RoleAdmin,
	{StatusCancellationRequested, StatusConfirmed}:            RoleAdmin,
	{StatusCancellationRequested, StatusAwaitingPayment}:      RoleAdmin,
	{StatusConfirmed, StatusCancelled}:                        RoleStudent,
	{StatusConfirmed, StatusRescheduled}:                      RoleAdmin,
}

// CanTransition reports whether role may move a booking from one status to
// another. It returns ErrInvalidStateTransition otherwise.
func CanTransition(from, to Status, role Role) error {
	if !from.Valid() || !to.Valid() || from == to || from.Terminal() {
		return ErrInvalidStateTransition
	}

	if to == StatusCancelledByAdmin || to == StatusNoShow {
		if role == RoleAdmin {
			return nil
		}
		return ErrInvalidStateTransition
	}

	want, ok := transitions[edge{from, to}]
	if !ok || want != role {
		return ErrInvalidStateTransition
	}
	return nil
}
