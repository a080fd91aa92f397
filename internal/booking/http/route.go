package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the booking engine. Role checks happen in the engine
// against the flag ResolveRole sets. limiter throttles the endpoints that
// take a slot.
func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, limiter gin.HandlerFunc) {
	g.GET("/availability", h.Availability)

	bookings := g.Group("/bookings")
	bookings.Use(authMiddleware, h.ResolveRole)
	{
		bookings.GET("", h.List)
		bookings.GET("/:id", h.Get)
		bookings.POST("", limiter, h.Create)
		bookings.POST("/with-credit", limiter, h.CreateWithCredit)
		bookings.POST("/:id/reschedule", limiter, h.Reschedule)
		bookings.POST("/:id/status", h.UpdateStatus)
		bookings.POST("/:id/cancellation-request", h.RequestCancellation)
		bookings.POST("/:id/cancellation-request/decline", h.DeclineCancellation)
		bookings.POST("/:id/payment-submitted", h.PaymentSubmitted)
		bookings.DELETE("/:id", h.Delete)
	}

	timeOff := g.Group("/time-off")
	timeOff.Use(authMiddleware, h.ResolveRole)
	{
		timeOff.GET("", h.ListTimeOff)
		timeOff.POST("", h.BlockTime)
		timeOff.DELETE("/:id", h.UnblockTime)
	}

	credits := g.Group("")
	credits.Use(authMiddleware, h.ResolveRole)
	{
		credits.GET("/me/credits", h.MyCredits)
		credits.GET("/students/:id/credits", h.StudentCredits)
		credits.POST("/credits/grant", h.GrantCredits)
	}

	sessions := g.Group("/group-sessions")
	sessions.Use(authMiddleware, h.ResolveRole)
	{
		sessions.POST("", h.CreateGroupSession)
		sessions.POST("/:id/join", limiter, h.JoinGroupSession)
		sessions.POST("/:id/cancel", h.CancelGroupSession)
	}

	g.POST("/private-groups", authMiddleware, h.ResolveRole, limiter, h.CreatePrivateGroup)
}
