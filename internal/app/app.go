// Package app assembles the engine and exposes its facade: every operation
// authenticates a session token, runs exactly one access check, then
// dispatches into the owning service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/spacenote/spacenote/internal/attachment"
	"github.com/spacenote/spacenote/internal/comment"
	"github.com/spacenote/spacenote/internal/config"
	"github.com/spacenote/spacenote/internal/export"
	"github.com/spacenote/spacenote/internal/image"
	"github.com/spacenote/spacenote/internal/note"
	"github.com/spacenote/spacenote/internal/session"
	"github.com/spacenote/spacenote/internal/space"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/storage/sqlite"
	"github.com/spacenote/spacenote/internal/telegram"
	"github.com/spacenote/spacenote/internal/template"
	"github.com/spacenote/spacenote/internal/user"
)

// App is the root object owning every service and the background worker.
type App struct {
	cfg *config.Config
	log *slog.Logger

	store       storage.Store
	users       *user.Service
	sessions    *session.Service
	templates   *template.Service
	spaces      *space.Service
	attachments *attachment.Service
	images      *image.Service
	telegram    *telegram.Service
	notes       *note.Service
	comments    *comment.Service
	export      *export.Service
	worker      *telegram.Worker

	stopWorker context.CancelFunc
	workerDone chan struct{}
}

// New opens the store and wires the services. The telegram worker is
// constructed only when a bot token is configured.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	store, err := sqlite.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return build(cfg, log, store, afero.NewOsFs()), nil
}

func build(cfg *config.Config, log *slog.Logger, store storage.Store, fs afero.Fs) *App {
	a := &App{cfg: cfg, log: log, store: store}
	a.templates = template.NewService(cfg.SiteURL, log)
	a.users = user.NewService(store, log)
	a.sessions = session.NewService(store, a.users, log)
	a.spaces = space.NewService(store, a.users, a.templates, log)
	a.attachments = attachment.NewService(store, attachment.NewBlobStore(fs, cfg.AttachmentsPath), log)
	a.images = image.NewService(fs, cfg.ImagesPath, a.attachments, log)
	a.telegram = telegram.NewService(store, log)
	a.notes = note.NewService(store, a.templates, a.images, a.attachments, a.telegram, log)
	a.comments = comment.NewService(store, a.notes, a.telegram, log)
	a.export = export.NewService(store, a.users, a.spaces, a.notes, a.comments, a.attachments, log)

	if cfg.TelegramBotToken != "" {
		a.worker = telegram.NewWorker(store, a.spaces, a.templates, a.images, telegram.NewBot(cfg.TelegramBotToken), log)
	}
	return a
}

// Start loads the caches and launches the worker when one is configured.
func (a *App) Start(ctx context.Context) error {
	if err := a.users.Start(ctx); err != nil {
		return fmt.Errorf("start users: %w", err)
	}
	if err := a.spaces.Start(ctx); err != nil {
		return fmt.Errorf("start spaces: %w", err)
	}
	if _, err := a.sessions.CleanupExpired(ctx); err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}

	if a.worker != nil {
		workerCtx, cancel := context.WithCancel(context.Background())
		a.stopWorker = cancel
		a.workerDone = make(chan struct{})
		go func() {
			defer close(a.workerDone)
			a.worker.Run(workerCtx)
		}()
	}
	a.log.Info("app started", "database", a.cfg.DatabasePath, "telegram_worker", a.worker != nil)
	return nil
}

// Stop shuts down in dependency order: worker first, then the rendition
// pipeline with a bounded grace, then the store.
func (a *App) Stop(ctx context.Context) error {
	if a.stopWorker != nil {
		a.stopWorker()
		select {
		case <-a.workerDone:
		case <-ctx.Done():
			a.log.Warn("telegram worker did not stop in time")
		}
	}

	grace := a.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	a.images.Drain(grace)

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	a.log.Info("app stopped")
	return nil
}
