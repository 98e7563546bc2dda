// Package server initializes and runs the storage backend: database and
// object-store connections, schema migrations, the file services, the audit
// consumer and the expiration worker, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/filekeeper/internal/keyedmutex"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/config"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filekeeper/internal/server/scanner"
	"github.com/dmitrijs2005/filekeeper/internal/server/services"
	"github.com/dmitrijs2005/filekeeper/internal/server/storage"
	"github.com/dmitrijs2005/filekeeper/internal/server/worker"
)

// encryptionSalt fixes the argon2 salt for the at-rest key derivation.
// Changing it makes previously written objects unreadable.
const encryptionSalt = "filekeeper.objects.v1"

// App owns the wired-together server components and their lifetimes.
type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	Files   *services.FileService
	auditor *services.AuditRecorder
	worker  *worker.ExpirationWorker
}

// NewApp connects to the database and object store, runs migrations and
// wires the services per the given configuration.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	s3store, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("object storage init error: %w", err)
	}

	var store storage.Store = s3store
	if cfg.EncryptionKey != "" {
		store = storage.NewEncryptingStore(s3store, []byte(cfg.EncryptionKey), []byte(encryptionSalt))
	}

	var scan scanner.Scanner = scanner.Noop{}
	if cfg.EnableVirusScan {
		clam := scanner.NewClamAV(cfg.ScannerAddr)
		if !clam.HealthCheck(ctx) {
			logger.Warn(ctx, "clamd is not reachable", "addr", cfg.ScannerAddr)
		}
		scan = clam
	}

	locks := keyedmutex.New()
	lifecycle := services.NewLifecycle(repos, store, logger)
	facts := services.NewFacts(db, repos, logger)
	auditor := services.NewAuditRecorder(db, repos, logger, cfg.AuditQueueSize)

	files := services.NewFileService(db, repos, store, scan, lifecycle, facts, auditor, locks, logger,
		services.FileServiceOptions{
			MaxFileSize:           cfg.MaxFileSize,
			ScanEnabled:           cfg.EnableVirusScan,
			AllowOnScannerFailure: cfg.AllowOnScannerFailure,
			EncryptAtRest:         cfg.EncryptionKey != "",
		})

	expiration := worker.NewExpirationWorker(db, repos, lifecycle, locks, logger,
		cfg.ExpirationInterval, cfg.ExpirationPageSize)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		Files:   files,
		auditor: auditor,
		worker:  expiration,
	}, nil
}

// Run starts the background components and blocks until ctx is cancelled or
// an OS signal arrives, then shuts down cleanly.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.initSignalHandler(cancel)
	app.logger.Info(ctx, "starting app")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.worker.Run(ctx) })
	g.Go(func() error { return app.auditor.Run(ctx) })

	err := g.Wait()

	if cerr := app.db.Close(); cerr != nil {
		app.logger.Error(ctx, "db close error", "error", cerr)
	}
	app.logger.Info(ctx, "app stopped")
	return err
}

func (app *App) initSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancel()
	}()
}
