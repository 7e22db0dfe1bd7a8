package app

import (
	"academix_backend/internal/config"
	"academix_backend/internal/controller"
	"academix_backend/internal/repository"
	"academix_backend/internal/service"
	"academix_backend/pkg/blockchain"
	"academix_backend/pkg/database"
	"academix_backend/pkg/logger"
	"academix_backend/pkg/monitoring"
	"academix_backend/pkg/security"
	"academix_backend/pkg/tracing"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Cron            *cron.Cron
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	course       *repository.CourseRepository
	exam         *repository.ExamRepository
	attempt      *repository.AttemptRepository
	submission   *repository.SubmissionRepository
	certificate  *repository.CertificateRepository
	notification *repository.NotificationRepository
}

type services struct {
	auth         *service.AuthService
	course       *service.CourseService
	exam         *service.ExamService
	session      *service.SessionService
	certificate  *service.CertificateService
	notification *service.NotificationService
	storage      service.StorageProvider
}

type controllers struct {
	auth         *controller.AuthController
	course       *controller.CourseController
	exam         *controller.ExamController
	attempt      *controller.AttemptController
	certificate  *controller.CertificateController
	notification *controller.NotificationController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig swaps in a reloaded config and fans it out to the registered
// callbacks. Values read once at startup (ports, pool sizes) keep their old
// settings until restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		course:       repository.NewCourseRepository(db),
		exam:         repository.NewExamRepository(db),
		attempt:      newAttemptRepository(db, rdb, cfg),
		submission:   repository.NewSubmissionRepository(db),
		certificate:  repository.NewCertificateRepository(db),
		notification: repository.NewNotificationRepository(db),
	}
}

func newAttemptRepository(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repository.AttemptRepository {
	repo := repository.NewAttemptRepository(db, rdb)
	if cfg.Exam.AutosaveTTLMinutes > 0 {
		repo.AutosaveTTL = time.Duration(cfg.Exam.AutosaveTTLMinutes) * time.Minute
	}
	return repo
}

func (a *App) initServices(repos *repositories, cfg *config.Config) (*services, error) {
	s := &services{}

	storage, err := service.NewStorageProvider(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage provider: %w", err)
	}
	s.storage = storage

	s.auth = service.NewAuthService(repos.user, &cfg.JWT)
	s.course = service.NewCourseService(repos.course)
	s.notification = service.NewNotificationService(repos.notification)

	issuer := blockchain.NewClient(cfg.Blockchain.IssuerURL, cfg.Blockchain.APIKey, cfg.Blockchain.RequestTimeout)
	s.certificate = service.NewCertificateService(
		repos.certificate, repos.user, repos.exam, repos.submission,
		issuer, storage, repos.notification, cfg.Exam.CertValidityMonths,
	)

	s.session = service.NewSessionService(repos.attempt, repos.exam, repos.submission,
		s.certificate, s.notification)
	if cfg.Exam.SubmitWaitMillis > 0 {
		s.session.SubmitWait = time.Duration(cfg.Exam.SubmitWaitMillis) * time.Millisecond
	}

	s.exam = service.NewExamService(repos.exam, repos.course, repos.attempt,
		repos.submission, repos.notification, repos.user, s.session, cfg.Exam.MaxQuestionsPerExam)

	return s, nil
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		course:       controller.NewCourseController(s.course),
		exam:         controller.NewExamController(s.exam),
		attempt:      controller.NewAttemptController(s.session, repos.submission),
		certificate:  controller.NewCertificateController(s.certificate),
		notification: controller.NewNotificationController(s.notification),
		health:       controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks schedules the three sweeps that keep the lifecycle
// moving without user traffic: exam status transitions, attempt expiry
// auto-submit, and pending certificate retries.
func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	a.Cron = cron.New(cron.WithSeconds())

	statusSpec := fmt.Sprintf("@every %ds", cfg.Exam.StatusSweepSeconds)
	if _, err := a.Cron.AddFunc(statusSpec, func() {
		if err := s.exam.SyncStatuses(context.Background()); err != nil {
			logger.Log.Error("exam status sweep error", zap.Error(err))
		}
	}); err != nil {
		logger.Log.Fatal("failed to schedule exam status sweep", zap.Error(err))
	}

	expirySpec := fmt.Sprintf("@every %ds", cfg.Exam.ExpirySweepSeconds)
	if _, err := a.Cron.AddFunc(expirySpec, func() {
		if err := s.session.ProcessExpiredAttempts(context.Background()); err != nil {
			logger.Log.Error("attempt expiry sweep error", zap.Error(err))
		}
	}); err != nil {
		logger.Log.Fatal("failed to schedule attempt expiry sweep", zap.Error(err))
	}

	retrySpec := fmt.Sprintf("@every %dm", cfg.Exam.CertRetryMinutes)
	if _, err := a.Cron.AddFunc(retrySpec, func() {
		if err := s.certificate.RetryPending(context.Background()); err != nil {
			logger.Log.Error("certificate retry error", zap.Error(err))
		}
	}); err != nil {
		logger.Log.Fatal("failed to schedule certificate retry", zap.Error(err))
	}

	a.Cron.Start()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb, cfg)
	services, err := app.initServices(repos, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	app.RegisterConfigCallback(func(c *config.Config) {
		if c.Exam.SubmitWaitMillis > 0 {
			services.session.SubmitWait = time.Duration(c.Exam.SubmitWaitMillis) * time.Millisecond
		}
		if c.Exam.MaxQuestionsPerExam > 0 {
			services.exam.MaxQuestions = c.Exam.MaxQuestionsPerExam
		}
		if c.Exam.AutosaveTTLMinutes > 0 {
			repos.attempt.AutosaveTTL = time.Duration(c.Exam.AutosaveTTLMinutes) * time.Minute
		}
	})

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("academix-exam-platform", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/storage", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.Cron != nil {
		cronCtx := a.Cron.Stop()
		<-cronCtx.Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Log.Sync()
	log.Println("Server exiting")
}
