// Package server contains the HTTP handlers of the site: HTML pages and the
// JSON API under /api/v1.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pivot/internal/auth"
	"pivot/internal/bootstrap"
	"pivot/internal/cache"
	"pivot/internal/config"
	"pivot/internal/feed"
	"pivot/internal/media"
	"pivot/internal/middleware"
	"pivot/internal/models"
	"pivot/internal/repository"
	"pivot/internal/service"
	"pivot/internal/web"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/template/html/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	views          *html.Engine
	promMiddleware *fiberprometheus.FiberPrometheus
	rateLimiter    *middleware.RateLimiter
	globalLimit    int
	pageCache      cache.PageCache
	media          media.Store

	feed           *feed.Assembler
	postService    *service.PostService
	commentService *service.CommentService
	followService  *service.FollowService
	groupService   *service.GroupService
	authService    *service.AuthService
}

// Option customizes a Server built by NewServerWithDeps.
type Option func(*Server)

// WithPageCache replaces the default page cache (Redis when available,
// otherwise in-process memory).
func WithPageCache(pc cache.PageCache) Option {
	return func(s *Server) { s.pageCache = pc }
}

// WithGlobalRateLimit sets how many requests per minute one IP may make
// across the whole app. Zero disables the limit.
func WithGlobalRateLimit(perMinute int) Option {
	return func(s *Server) { s.globalLimit = perMinute }
}

// WithMediaStore enables image uploads backed by store.
func WithMediaStore(store media.Store) Option {
	return func(s *Server) { s.media = store }
}

// NewServer connects to the database, Redis and the object store described
// by cfg and builds a Server on top of them.
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	var opts []Option
	if rt.Media != nil {
		opts = append(opts, WithMediaStore(rt.Media))
	}
	return NewServerWithDeps(cfg, rt.DB, rt.Redis, opts...)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server: config and database are required")
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	followRepo := repository.NewFollowRepository(db)
	tokenRepo := repository.NewTokenRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		views:          web.NewEngine(),
		promMiddleware: middleware.InitMetrics("pivot"),
		rateLimiter:    middleware.NewRateLimiter(redisClient, cfg.Env),
		globalLimit:    defaultGlobalLimit,
	}
	if cfg.Env == "test" {
		s.globalLimit = 0
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pageCache == nil {
		if redisClient != nil {
			s.pageCache = cache.NewRedisPageCache(redisClient, cache.PageNamespace)
		} else {
			s.pageCache = cache.NewMemoryPageCache(time.Now)
		}
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())

	s.feed = feed.NewAssembler(postRepo, groupRepo, userRepo, followRepo, commentRepo, cfg.PostsPerPage)
	s.postService = service.NewPostService(postRepo, groupRepo, s.media, cfg.MediaMaxUploadMB)
	s.commentService = service.NewCommentService(commentRepo, postRepo)
	s.followService = service.NewFollowService(followRepo, userRepo)
	s.groupService = service.NewGroupService(groupRepo)
	s.authService = service.NewAuthService(userRepo, tokenRepo, tokens)

	if err := s.views.Load(); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return s, nil
}

// NewApp builds the Fiber application with all middleware and routes.
func (s *Server) NewApp() *fiber.App {
	maxMB := s.config.MediaMaxUploadMB
	if maxMB <= 0 {
		maxMB = media.DefaultMaxUploadMB
	}
	app := fiber.New(fiber.Config{
		AppName:      "Pivot",
		BodyLimit:    (maxMB + 1) * 1024 * 1024,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Tracing must run before ContextMiddleware so the trace ID is propagated.
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Post images are served from the object store's origin.
	app.Use(helmet.New(helmet.Config{
		CrossOriginEmbedderPolicy: "unsafe-none",
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Errors from here down are rendered before the logger, metrics and
	// tracing read the status.
	app.Use(middleware.RenderErrors())

	// Global rate limiting per IP. Over the limit the error handler answers
	// in the shape of the API or the pages.
	app.Use(limiter.New(limiter.Config{
		Max:        max(s.globalLimit, 1),
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.globalLimit <= 0
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests, please try again later.")
		},
	}))

	app.Use(s.ResolveUser())
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	s.setupAPIRoutes(app)
	s.setupPageRoutes(app)

	app.Use(s.NotFoundPage)
}

const defaultGlobalLimit = 100

// Credential endpoints are limited per client.
var (
	tokenAuthRule  = middleware.Rule{Name: "token_auth", Limit: 10, Window: 5 * time.Minute}
	apiLoginRule   = middleware.Rule{Name: "jwt_create", Limit: 10, Window: 5 * time.Minute}
	apiSignupRule  = middleware.Rule{Name: "signup", Limit: 3, Window: 10 * time.Minute}
	pageLoginRule  = middleware.Rule{Name: "page_login", Limit: 10, Window: 5 * time.Minute}
	pageSignupRule = middleware.Rule{Name: "page_signup", Limit: 3, Window: 10 * time.Minute}
)

func (s *Server) setupAPIRoutes(app *fiber.App) {
	api := app.Group("/api/v1")
	authRequired := s.APIAuthRequired()

	api.Post("/api-token-auth/", s.rateLimiter.Handler(tokenAuthRule, middleware.FailOpen), s.ObtainAPIToken)

	authAPI := api.Group("/auth")
	authAPI.Post("/users/", s.rateLimiter.Handler(apiSignupRule, middleware.FailOpen), s.RegisterUser)
	authAPI.Get("/users/me/", authRequired, s.GetMe)
	authAPI.Post("/jwt/create/", s.rateLimiter.Handler(apiLoginRule, middleware.FailOpen), s.CreateJWT)
	authAPI.Post("/jwt/refresh/", s.RefreshJWT)
	authAPI.Post("/jwt/verify/", s.VerifyJWT)

	posts := api.Group("/posts")
	posts.Get("/", s.ListPosts)
	posts.Post("/", authRequired, s.CreatePost)
	// Define specific /:post_id/comments routes BEFORE generic /:id route
	posts.Get("/:post_id/comments/", s.ListComments)
	posts.Post("/:post_id/comments/", authRequired, s.CreateComment)
	posts.Get("/:post_id/comments/:id/", s.GetComment)
	posts.Put("/:post_id/comments/:id/", authRequired, s.UpdateComment)
	posts.Patch("/:post_id/comments/:id/", authRequired, s.UpdateComment)
	posts.Delete("/:post_id/comments/:id/", authRequired, s.DeleteComment)
	posts.Get("/:id/", s.GetPost)
	posts.Put("/:id/", authRequired, s.UpdatePost)
	posts.Patch("/:id/", authRequired, s.UpdatePost)
	posts.Delete("/:id/", authRequired, s.DeletePost)

	groups := api.Group("/groups")
	groups.Get("/", s.ListGroups)
	groups.Get("/:id/", s.GetGroup)

	follow := api.Group("/follow", authRequired)
	follow.Get("/", s.ListFollows)
	follow.Post("/", s.CreateFollow)
	follow.Delete("/:username/", s.DeleteFollow)

	admin := api.Group("/admin", authRequired, s.StaffRequired())
	admin.Post("/cache/flush", s.FlushPageCache)

	api.Use(func(c *fiber.Ctx) error {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Endpoint", c.Path()))
	})
}

func (s *Server) setupPageRoutes(app *fiber.App) {
	loginRequired := s.LoginRequired()

	app.Get("/", s.IndexPage)
	app.Get("/group/:slug/", s.GroupPage)
	app.Get("/follow/", loginRequired, s.FollowIndexPage)
	app.Get("/create/", loginRequired, s.PostCreatePage)
	app.Post("/create/", loginRequired, s.PostCreateSubmit)

	app.Get("/profile/:username/", s.ProfilePage)
	app.Get("/profile/:username/follow", loginRequired, s.ProfileFollow)
	app.Get("/profile/:username/unfollow", loginRequired, s.ProfileUnfollow)

	app.Get("/posts/:id/", s.PostDetailPage)
	app.Get("/posts/:id/edit/", loginRequired, s.PostEditPage)
	app.Post("/posts/:id/edit/", loginRequired, s.PostEditSubmit)
	app.Post("/posts/:id/comment", loginRequired, s.AddCommentSubmit)

	authPages := app.Group("/auth")
	authPages.Get("/login/", s.LoginPage)
	authPages.Post("/login/", s.rateLimiter.Handler(pageLoginRule, middleware.FailOpen), s.LoginSubmit)
	authPages.Get("/signup/", s.SignupPage)
	authPages.Post("/signup/", s.rateLimiter.Handler(pageSignupRule, middleware.FailOpen), s.SignupSubmit)
	authPages.Get("/logout/", s.Logout)
	authPages.Post("/logout/", s.Logout)

	app.Get("/media/*", s.MediaRedirect)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: without
// it the page cache runs in memory.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// errorHandler maps errors returned by handlers. API paths get the JSON
// error body; pages get the 404 template, a login redirect or a plain 500.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if isAPIPath(c) {
			return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
		}
		if fe.Code == fiber.StatusNotFound {
			return s.NotFoundPage(c)
		}
		return c.Status(fe.Code).SendString(fe.Message)
	}

	if isAPIPath(c) {
		if models.StatusFor(err) == fiber.StatusInternalServerError {
			middleware.Logger.ErrorContext(c.UserContext(), "api request failed", slog.String("error", err.Error()))
		}
		return models.RespondWithAppError(c, err)
	}

	switch models.ErrorCode(err) {
	case models.CodeNotFound:
		return s.NotFoundPage(c)
	case models.CodeUnauthorized:
		return redirectToLogin(c)
	case models.CodePermissionDenied:
		if id, perr := c.ParamsInt("id"); perr == nil && id > 0 {
			return c.Redirect(postPath(uint(id)), fiber.StatusFound)
		}
		return c.Redirect("/", fiber.StatusFound)
	}
	middleware.Logger.ErrorContext(c.UserContext(), "page request failed", slog.String("error", err.Error()))
	return c.Status(fiber.StatusInternalServerError).SendString("Internal server error")
}

// Start builds the app and listens on the configured port.
func (s *Server) Start() error {
	app := s.NewApp()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
