package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nekogravitycat/lesson-booking-backend/internal/auth"
	"github.com/nekogravitycat/lesson-booking-backend/internal/booking"
	bookingHttp "github.com/nekogravitycat/lesson-booking-backend/internal/booking/http"
	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	gsHttp "github.com/nekogravitycat/lesson-booking-backend/internal/groupsession/http"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	productHttp "github.com/nekogravitycat/lesson-booking-backend/internal/product/http"
	"github.com/nekogravitycat/lesson-booking-backend/internal/user"
	userHttp "github.com/nekogravitycat/lesson-booking-backend/internal/user/http"
)

// Config carries the services and settings the router is assembled from.
type Config struct {
	IsProduction    bool
	ProdOrigins     string
	RateLimitPerSec float64
	RateLimitBurst  int

	UserService         user.Service
	ProductService      product.Service
	GroupSessionService groupsession.Service
	BookingService      booking.Service
	JWTManager          *auth.JWTManager
	Logger              *zap.Logger
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global Middleware:
	// - RequestLogger: one structured log line per request.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(RequestLogger(cfg.Logger), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{
		"http://localhost:8081", // Swagger
	}
	if cfg.IsProduction && cfg.ProdOrigins != "" {
		config.AllowOrigins = splitOrigins(cfg.ProdOrigins)
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)
	// adminMiddleware: Further checks if the authenticated user is an admin.
	adminMiddleware := RequireAdmin(cfg.UserService)
	limiter := RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	userHandler := userHttp.NewHandler(cfg.UserService, cfg.JWTManager)
	productHandler := productHttp.NewHandler(cfg.ProductService)
	gsHandler := gsHttp.NewHandler(cfg.GroupSessionService)
	bookingHandler := bookingHttp.NewHandler(cfg.BookingService, cfg.UserService)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		userHttp.RegisterRoutes(v1, userHandler, authMiddleware, adminMiddleware, limiter)
		productHttp.RegisterRoutes(v1, productHandler, authMiddleware, adminMiddleware)
		gsHttp.RegisterRoutes(v1, gsHandler, authMiddleware)
		bookingHttp.RegisterRoutes(v1, bookingHandler, authMiddleware, limiter)
	}

	return r
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
