package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/agora/internal/auth"
	"github.com/BradenHooton/agora/internal/background"
	"github.com/BradenHooton/agora/internal/config"
	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/handlers"
	middlewareCustom "github.com/BradenHooton/agora/internal/middleware"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/realtime"
	"github.com/BradenHooton/agora/internal/repositories"
	"github.com/BradenHooton/agora/internal/routes"
	"github.com/BradenHooton/agora/internal/services"
	"github.com/BradenHooton/agora/migrations"
	pkgauth "github.com/BradenHooton/agora/pkg/auth"
	"github.com/BradenHooton/agora/pkg/cipher"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	pkglogger "github.com/BradenHooton/agora/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx, migrations.FS)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	codeRepo := repositories.NewCodeRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	trustRepo := repositories.NewTrustRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	groupRepo := repositories.NewGroupRepository(db)
	listingRepo := repositories.NewListingRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)

	msgCipher, err := cipher.New([]byte(cfg.Messaging.EncryptionKey))
	if err != nil {
		logger.Error("failed to initialize message cipher", slog.Any("error", err))
		os.Exit(1)
	}

	mailer, err := services.NewMailer(cfg.Email, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", slog.Any("error", err))
		os.Exit(1)
	}

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.TimingBaseDelay,
		RandomDelay: cfg.Auth.TimingRandomDelay,
	})
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	otpService := services.NewOTPService(codeRepo, mailer, cfg.OTP, logger)
	threatService := services.NewThreatService(loginAttemptRepo, cfg.Threat, logger)
	authService := services.NewAuthService(userRepo, otpService, threatService, tokenManager, timingDelay, logger, auditLogger)
	userService := services.NewUserService(userRepo, profileRepo, logger, auditLogger)
	trustService := services.NewTrustService(trustRepo, userRepo, logger, auditLogger)
	messagingService := services.NewMessagingService(messageRepo, groupRepo, trustService, userRepo, msgCipher,
		int64(cfg.Messaging.MaxAttachmentMB)<<20, logger)
	catalogService := services.NewCatalogService(listingRepo, logger)
	walletService := services.NewWalletService(ledgerRepo, listingRepo, userRepo, otpService, logger, auditLogger)

	hub := realtime.NewHub(logger)
	messagingService.SetBroadcaster(hub)
	trustService.OnBlock(trustService.DropFriendships, messagingService.NotifyBlocked)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, ipConfig, logger),
		Users:    handlers.NewUserHandler(userService, logger),
		Messages: handlers.NewMessageHandler(messagingService, int64(cfg.Messaging.MaxAttachmentMB)<<20, logger),
		Trust:    handlers.NewTrustHandler(trustService, logger),
		Wallet:   handlers.NewWalletHandler(walletService, logger),
		Listings: handlers.NewListingHandler(catalogService, logger),
		Admin:    handlers.NewAdminHandler(threatService, userService, catalogService, logger),
		Chat:     realtime.NewHandler(hub, messagingService, cfg.Server.AllowedOrigins, cfg.Messaging.SendBufferLength, logger),
	}

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	cleanupManager := background.NewCleanupManager(logger, cfg.Auth.CleanupInterval,
		background.CleanupTask{Name: "expired_codes", Run: otpService.PurgeExpired},
		background.CleanupTask{Name: "login_attempts", Run: threatService.PurgeHistory},
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)

	routes.RegisterRoutes(router, h, tokenManager, cfg.Auth.MasterKey)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ensureAdminUser creates the first superadmin if ADMIN_USERNAME, ADMIN_EMAIL
// and ADMIN_PASSWORD are all set.
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	username := pkgauth.NormalizeUsername(os.Getenv("ADMIN_USERNAME"))
	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	password := os.Getenv("ADMIN_PASSWORD")

	if username == "" || email == "" || password == "" {
		logger.Info("admin bootstrap variables not set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByUsername(ctx, username)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}
	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin, err := userRepo.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		IsAdmin:      true,
		IsSuperadmin: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	if err := userRepo.MarkEmailVerified(ctx, admin.ID); err != nil {
		return fmt.Errorf("failed to activate admin user: %w", err)
	}

	logger.Info("admin user created", slog.String("user_id", admin.ID))
	return nil
}
