package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/special-week-api/api/swagger"
	"github.com/noah-isme/special-week-api/internal/handler"
	internalmiddleware "github.com/noah-isme/special-week-api/internal/middleware"
	"github.com/noah-isme/special-week-api/internal/models"
	"github.com/noah-isme/special-week-api/internal/repository"
	"github.com/noah-isme/special-week-api/internal/service"
	"github.com/noah-isme/special-week-api/pkg/cache"
	"github.com/noah-isme/special-week-api/pkg/config"
	"github.com/noah-isme/special-week-api/pkg/database"
	"github.com/noah-isme/special-week-api/pkg/export"
	"github.com/noah-isme/special-week-api/pkg/jobs"
	"github.com/noah-isme/special-week-api/pkg/lock"
	"github.com/noah-isme/special-week-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/special-week-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/special-week-api/pkg/middleware/requestid"
)

// @title Special Week API
// @version 1.0.0
// @description Workshop allocation, manual placement and student enrollment for the school special week
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type services struct {
	auth        *service.AuthService
	allocation  *service.AllocationService
	placement   *service.PlacementService
	enrollment  *service.EnrollmentService
	export      *service.TimetableExportService
	metrics     *service.MetricsService
	cacheRepo   *repository.CacheRepository
	allocations *jobs.Queue
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs := buildServices(cfg, db, logr)
	if svcs.cacheRepo != nil {
		defer svcs.cacheRepo.Close() //nolint:errcheck
	}
	if svcs.allocations != nil {
		svcs.allocations.Start(ctx)
		defer svcs.allocations.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(svcs.metrics))

	registerRoutes(r, cfg, db, svcs)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildServices(cfg *config.Config, db *sqlx.DB, logr *zap.Logger) services {
	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	shortDay := models.ParseWeekday(cfg.Scheduler.ShortDay)
	if shortDay == 0 && cfg.Scheduler.ShortDay != "" {
		logr.Warn("unknown short day, no day is reduced", zap.String("short_day", cfg.Scheduler.ShortDay))
	}

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, timetable cache disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	var cacheSvc *service.CacheService
	if cacheRepo != nil {
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TimetableTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Cache.TimetableTTL, logr, false)
	}

	slotRepo := repository.NewTimeSlotRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	workshopRepo := repository.NewWorkshopRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	dutyRepo := repository.NewDutyRepository(db)
	placementRepo := repository.NewPlacementRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	runRepo := repository.NewAllocationRunRepository(db)
	userRepo := repository.NewUserRepository(db)
	lockRepo := repository.NewLockRepository()
	mutex := lock.NewKeyedMutex()

	loader := service.NewSnapshotLoader(slotRepo, roomRepo, workshopRepo, teacherRepo, dutyRepo, placementRepo)

	allocationSvc := service.NewAllocationService(db, loader, placementRepo, runRepo, lockRepo, service.AllocationServiceConfig{
		ShortDay:  shortDay,
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})

	var queue *jobs.Queue
	if cfg.Scheduler.Enabled {
		queue = jobs.NewQueue(service.JobTypeAllocation, allocationSvc.HandleJob, jobs.QueueConfig{
			Workers:    1,
			BufferSize: cfg.Scheduler.QueueBuffer,
			MaxRetries: cfg.Scheduler.JobRetries,
			RetryDelay: cfg.Scheduler.RetryDelay,
			Logger:     logr,
		})
		allocationSvc.SetQueue(queue)
	}

	placementSvc := service.NewPlacementService(service.PlacementServiceDeps{
		Tx:          db,
		Slots:       slotRepo,
		Rooms:       roomRepo,
		Workshops:   workshopRepo,
		Teachers:    teacherRepo,
		Duties:      dutyRepo,
		Placements:  placementRepo,
		Enrollments: enrollmentRepo,
		Locks:       lockRepo,
		Mutex:       mutex,
		Cache:       cacheSvc,
		CacheTTL:    cfg.Cache.TimetableTTL,
		ShortDay:    shortDay,
		Validator:   validate,
		Logger:      logr,
	})

	enrollmentSvc := service.NewEnrollmentService(service.EnrollmentServiceDeps{
		Tx:          db,
		Slots:       slotRepo,
		Workshops:   workshopRepo,
		Placements:  placementRepo,
		Enrollments: enrollmentRepo,
		Users:       userRepo,
		Locks:       lockRepo,
		Mutex:       mutex,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		ShortDay:    shortDay,
		Validator:   validate,
		Logger:      logr,
	})

	exportSvc := service.NewTimetableExportService(placementSvc, export.NewCSVExporter(), export.NewPDFExporter(), validate, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "special-week-api",
	})

	return services{
		auth:        authSvc,
		allocation:  allocationSvc,
		placement:   placementSvc,
		enrollment:  enrollmentSvc,
		export:      exportSvc,
		metrics:     metricsSvc,
		cacheRepo:   cacheRepo,
		allocations: queue,
	}
}

func registerRoutes(r *gin.Engine, cfg *config.Config, db *sqlx.DB, svcs services) {
	metricsHandler := handler.NewMetricsHandler(svcs.metrics, db)
	authHandler := handler.NewAuthHandler(svcs.auth)
	allocationHandler := handler.NewAllocationHandler(svcs.allocation)
	placementHandler := handler.NewPlacementHandler(svcs.placement, svcs.export)
	enrollmentHandler := handler.NewEnrollmentHandler(svcs.enrollment)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := string(models.RoleAdmin)
	teacher := string(models.RoleTeacher)
	student := string(models.RoleStudent)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(svcs.auth))
	secured.GET("/auth/me", authHandler.Me)
	secured.GET("/admin/metrics", internalmiddleware.RBAC(admin), metricsHandler.Snapshot)

	allocations := secured.Group("/allocations", internalmiddleware.RBAC(admin))
	allocations.POST("/preview", allocationHandler.Preview)
	allocations.POST("/runs", allocationHandler.CreateRun)
	allocations.GET("/runs", allocationHandler.ListRuns)
	allocations.GET("/runs/:id", allocationHandler.GetRun)

	placements := secured.Group("/placements")
	placements.GET("", placementHandler.List)
	placements.GET("/export", internalmiddleware.RBAC(admin, teacher), placementHandler.Export)
	placements.POST("", internalmiddleware.RBAC(admin), placementHandler.Create)
	placements.DELETE("/:id", internalmiddleware.RBAC(admin), placementHandler.Delete)

	enrollments := secured.Group("/enrollments", internalmiddleware.RBAC(admin, student))
	enrollments.POST("", enrollmentHandler.Enroll)
	enrollments.DELETE("/:id", enrollmentHandler.Cancel)

	secured.GET("/students/:id/enrollments", internalmiddleware.RBAC(admin, internalmiddleware.SelfRole), enrollmentHandler.ListByStudent)
}
