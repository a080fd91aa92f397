package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nekogravitycat/lesson-booking-backend/internal/api"
	"github.com/nekogravitycat/lesson-booking-backend/internal/auth"
	"github.com/nekogravitycat/lesson-booking-backend/internal/booking"
	"github.com/nekogravitycat/lesson-booking-backend/internal/config"
	"github.com/nekogravitycat/lesson-booking-backend/internal/groupsession"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/cache"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/events"
	"github.com/nekogravitycat/lesson-booking-backend/internal/product"
	"github.com/nekogravitycat/lesson-booking-backend/internal/user"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction    bool
	ProdOrigins     string
	DBPool          *pgxpool.Pool
	JWTSecret       string
	JWTTTL          time.Duration
	BcryptCost      int
	RateLimitPerSec float64
	RateLimitBurst  int

	Scheduling           config.SchedulingConfig
	AvailabilityCacheTTL time.Duration
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	AMQPURL              string

	Logger *zap.Logger
	// Now overrides the booking engine clock; nil means time.Now.
	Now func() time.Time
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router         *gin.Engine
	JWTManager     *auth.JWTManager
	UserService    user.Service
	ProductService product.Service
	BookingService booking.Service

	closers []func() error
}

// NewContainer initializes all modules and returns the container. Redis and
// the message broker are optional: when unreachable, the availability cache
// falls back to process memory and events are dropped.
func NewContainer(ctx context.Context, cfg Config) *Container {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{}

	// Init Components
	passwordHasher := auth.NewBcryptPasswordHasherWithCost(cfg.BcryptCost)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	// User Module
	userRepo := user.NewPgxRepository(cfg.DBPool)
	userService := user.NewService(userRepo, passwordHasher, logger.Named("user"))

	// Product Module
	productRepo := product.NewPgxRepository(cfg.DBPool)
	productService := product.NewService(productRepo)

	// Group Session Module (reads only; writes go through the booking engine)
	gsRepo := groupsession.NewPgxRepository(cfg.DBPool)
	gsService := groupsession.NewService(gsRepo)

	// Booking Module
	availabilityCache := c.newCache(ctx, cfg, logger)
	publisher := c.newPublisher(cfg, logger)
	bookingService := booking.NewService(
		booking.NewPgxStore(cfg.DBPool),
		productService,
		userService,
		availabilityCache,
		publisher,
		booking.Config{
			TutorID:                cfg.Scheduling.TutorID,
			Location:               cfg.Scheduling.Location,
			WorkingHoursStart:      cfg.Scheduling.WorkingHoursStart,
			WorkingHoursEnd:        cfg.Scheduling.WorkingHoursEnd,
			CancelLeadIndividual:   cfg.Scheduling.CancelLeadIndividual,
			CancelLeadGroup:        cfg.Scheduling.CancelLeadGroup,
			PrivateGroupMaxMembers: cfg.Scheduling.PrivateGroupMaxMember,
			AvailabilityCacheTTL:   cfg.AvailabilityCacheTTL,
			Now:                    cfg.Now,
		},
		logger.Named("booking"),
	)

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:        cfg.IsProduction,
		ProdOrigins:         cfg.ProdOrigins,
		RateLimitPerSec:     cfg.RateLimitPerSec,
		RateLimitBurst:      cfg.RateLimitBurst,
		UserService:         userService,
		ProductService:      productService,
		GroupSessionService: gsService,
		BookingService:      bookingService,
		JWTManager:          jwtManager,
		Logger:              logger.Named("http"),
	})

	c.Router = router
	c.JWTManager = jwtManager
	c.UserService = userService
	c.ProductService = productService
	c.BookingService = bookingService
	return c
}

func (c *Container) newCache(ctx context.Context, cfg Config, logger *zap.Logger) cache.Cache {
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			c.closers = append(c.closers, client.Close)
			logger.Info("availability cache: redis", zap.String("addr", cfg.RedisAddr))
			return cache.NewRedis(client, "lessons:"+cfg.Scheduling.TutorID+":")
		}
		logger.Warn("redis unavailable, using in-memory availability cache", zap.Error(err))
	}
	return cache.NewMemory(cfg.AvailabilityCacheTTL)
}

func (c *Container) newPublisher(cfg Config, logger *zap.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Noop{}
	}
	p, err := events.NewAMQP(cfg.AMQPURL)
	if err != nil {
		logger.Warn("message broker unavailable, booking events disabled", zap.Error(err))
		return events.Noop{}
	}
	c.closers = append(c.closers, p.Close)
	return p
}

// Close releases the cache and broker connections.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}
