package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zots0127/marketadmin/internal/adapter/handler"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/internal/infrastructure/badgerdb"
	"github.com/zots0127/marketadmin/internal/infrastructure/cms"
	"github.com/zots0127/marketadmin/internal/infrastructure/history"
	"github.com/zots0127/marketadmin/internal/infrastructure/memory"
	"github.com/zots0127/marketadmin/internal/infrastructure/objectstore"
	"github.com/zots0127/marketadmin/internal/infrastructure/postgres"
	infrarepo "github.com/zots0127/marketadmin/internal/infrastructure/repository"
	"github.com/zots0127/marketadmin/internal/infrastructure/sqlite"
	"github.com/zots0127/marketadmin/internal/usecase"
	"github.com/zots0127/marketadmin/pkg/config"
	"github.com/zots0127/marketadmin/pkg/logger"
	"github.com/zots0127/marketadmin/pkg/media"
	"github.com/zots0127/marketadmin/pkg/middleware"
)

var version = "dev"

func main() {
	var (
		configFile    = flag.String("config", "", "Configuration file path")
		issueToken    = flag.String("issue-token", "", "Print a signed token for this operator id and exit")
		tokenRole     = flag.String("role", "admin", "Role carried by -issue-token")
		tokenTTL      = flag.Duration("token-ttl", 24*time.Hour, "Lifetime of -issue-token")
		compressVideo = flag.String("compress-video", "", "Compress this video file with ffmpeg and exit")
		videoOut      = flag.String("out", "", "Destination for -compress-video")
		watch         = flag.Bool("watch", true, "Reload the configuration file when it changes")
	)
	flag.Parse()

	configManager := config.NewConfigManager()
	cfg, err := configManager.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	output, closeOutput, err := logOutput(cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log output: %v\n", err)
		os.Exit(1)
	}
	defer closeOutput()
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *issueToken != "":
		token, err := middleware.IssueToken(cfg.Security.JWTSecret, *issueToken, *tokenRole, *tokenTTL)
		if err != nil {
			logger.Fatal("Failed to issue token", map[string]interface{}{"error": err.Error()})
		}
		fmt.Println(token)
		return
	case *compressVideo != "":
		if err := runVideoCompression(cfg, *compressVideo, *videoOut); err != nil {
			logger.Fatal("Video compression failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	if err := run(configManager, cfg, *watch); err != nil {
		logger.Fatal("Server stopped with error", map[string]interface{}{"error": err.Error()})
	}
}

func run(configManager *config.ConfigManager, cfg *config.Config, watch bool) error {
	gin.SetMode(cfg.Server.Mode)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	defer closeStore()

	settings, closeSettings, err := openSettings(cfg)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	defer closeSettings()

	var signer repository.UploadSigner
	if cfg.S3.Enabled {
		s, err := objectstore.NewSigner(objectstore.Config{
			Endpoint:   cfg.S3.Endpoint,
			Region:     cfg.S3.Region,
			Bucket:     cfg.S3.Bucket,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			PathStyle:  cfg.S3.PathStyle,
			PresignTTL: cfg.S3.PresignTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to create upload signer: %w", err)
		}
		signer = s
	}

	kinds := cfg.Backup.EntityKinds()
	validator := usecase.NewValidator(kinds, cfg.Backup.IDField)
	backupUseCase := usecase.NewBackupUseCase(
		usecase.NewEntityReader(store, kinds, cfg.Backup.ReadConcurrency),
		usecase.NewAssembler(time.Now),
		validator,
		usecase.NewRestorer(store, validator, kinds),
		usecase.NewCodec(int64(cfg.Backup.MaxImportBytes), cfg.Backup.Location()),
		history.NewRing(cfg.Backup.HistorySize),
	)

	handlers := handler.Handlers{
		Health:  handler.NewHealthHandler(usecase.NewHealthUseCase(infrarepo.NewHealthRepository(store, cfg.Store.Driver, settings), version)),
		Backup:  handler.NewBackupHandler(backupUseCase),
		Setting: handler.NewSettingHandler(usecase.NewSettingUseCase(settings, cfg.Settings.Defaults)),
		Upload:  handler.NewUploadHandler(usecase.NewUploadUseCase(signer)),
		Media: handler.NewMediaHandler(media.ImageOptions{
			MaxBytes:     int(cfg.Media.MaxImageBytes),
			MaxDimension: cfg.Media.MaxDimension,
			Quality:      cfg.Media.Quality,
			Format:       cfg.Media.Format,
			MaxPixels:    cfg.Media.MaxPixels,
		}),
		Config: config.NewConfigMiddleware(configManager),
	}

	auth := middleware.NewAuthentication(middleware.AuthConfig{
		Enabled:     cfg.Security.EnableAuth,
		Secret:      cfg.Security.JWTSecret,
		DefaultRole: cfg.Security.AdminRole,
	}, logger.Adapter{})

	limitConfig := middleware.DefaultRateLimitConfig()
	limitConfig.Enabled = cfg.RateLimit.Enabled
	limitConfig.RequestsPerMinute = cfg.RateLimit.RequestsPerMinute
	limitConfig.BurstSize = cfg.RateLimit.BurstSize
	limitConfig.KeyGenerator = middleware.OperatorKeyGenerator
	limiter := middleware.NewRateLimit(limitConfig, logger.Adapter{})
	defer limiter.Stop()

	router, err := handler.NewRouter(cfg, handlers, auth, limiter)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	if watch && configManager.ConfigPath() != "" {
		watcher, err := config.NewConfigWatcher(configManager)
		if err != nil {
			logger.Warn("Config watcher disabled", map[string]interface{}{"error": err.Error()})
		} else {
			watcher.AddCallback(func(oldConfig, newConfig *config.Config) {
				if oldConfig.Logging.Level == newConfig.Logging.Level {
					return
				}
				if err := logger.SetLevel(newConfig.Logging.Level); err != nil {
					logger.Error(err, "Failed to apply log level", nil)
					return
				}
				logger.Info("Log level changed", map[string]interface{}{"level": newConfig.Logging.Level})
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", map[string]interface{}{
			"address": srv.Addr,
			"store":   cfg.Store.Driver,
			"version": version,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("Shutting down server", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited", nil)
	return nil
}

// openStore returns the configured entity store and its closer
func openStore(cfg *config.Config) (repository.EntityStore, func(), error) {
	idField := cfg.Backup.IDField
	noop := func() {}

	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart", nil)
		return memory.NewStore(idField), noop, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, noop, err
		}
		return sqlite.NewStore(db, idField, cfg.Store.PageSize), func() { db.Close() }, nil
	case "postgres":
		db, err := postgres.Open(cfg.Store.Postgres.DSN, cfg.Store.Postgres.MaxOpenConns, cfg.Store.Postgres.MaxIdleConns)
		if err != nil {
			return nil, noop, err
		}
		return postgres.NewStore(db, idField, cfg.Store.PageSize), closeGorm(db), nil
	case "badger":
		db, err := badgerdb.Open(cfg.Store.Badger.Dir)
		if err != nil {
			return nil, noop, err
		}
		return badgerdb.NewStore(db, idField), func() { db.Close() }, nil
	case "cms":
		client, err := cms.NewClient(cms.Config{
			BaseURL:          cfg.Store.CMS.BaseURL,
			Token:            cfg.Store.CMS.Token,
			PageSize:         cfg.Store.PageSize,
			Timeout:          cfg.Store.CMS.Timeout,
			FailureThreshold: cfg.Store.CMS.FailureThreshold,
			OpenTimeout:      cfg.Store.CMS.OpenTimeout,
		}, idField)
		if err != nil {
			return nil, noop, err
		}
		return client, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openSettings keeps flags next to the entity data when the store is SQL, otherwise in an in-memory SQLite
func openSettings(cfg *config.Config) (repository.SettingRepository, func(), error) {
	if cfg.Store.Driver == "postgres" {
		db, err := postgres.Open(cfg.Store.Postgres.DSN, 2, 1)
		if err != nil {
			return nil, func() {}, err
		}
		repo, err := postgres.NewSettingRepository(db)
		if err != nil {
			closeGorm(db)()
			return nil, func() {}, err
		}
		return repo, closeGorm(db), nil
	}

	path := ":memory:"
	if cfg.Store.Driver == "sqlite" {
		path = cfg.Store.SQLite.Path
	} else {
		logger.Warn("Settings are kept in memory for this store driver", map[string]interface{}{"driver": cfg.Store.Driver})
	}

	db, err := sqlite.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	repo, err := sqlite.NewSettingRepository(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, func() {}, err
	}
	return repo, func() { db.Close() }, nil
}

func runVideoCompression(cfg *config.Config, src, dst string) error {
	if dst == "" {
		return errors.New("-out is required with -compress-video")
	}
	opts := media.DefaultVideoOptions()
	if cfg.Media.MaxDimension > 0 {
		opts.MaxDimension = cfg.Media.MaxDimension
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := media.CompressVideo(ctx, src, dst, opts); err != nil {
		return err
	}
	logger.Info("Video compressed", map[string]interface{}{
		"src":      src,
		"dst":      dst,
		"duration": time.Since(start).String(),
	})
	return nil
}

func logOutput(output string) (io.Writer, func(), error) {
	switch output {
	case "", "stdout":
		return os.Stdout, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}
}

func closeGorm(db *gorm.DB) func() {
	return func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
