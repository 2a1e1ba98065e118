// Package daemon wires configuration, the two stores, the coordinator, and
// the HTTP server into a running process.
package daemon

import (
	"context"
	"log/slog"
	"os"

	"github.com/MenxLi/fss/internal/blob"
	"github.com/MenxLi/fss/internal/config"
	"github.com/MenxLi/fss/internal/httpapi"
	"github.com/MenxLi/fss/internal/storage"
	"github.com/MenxLi/fss/internal/store"
)

type Options struct {
	Config config.Config
	Logger *slog.Logger
}

// Run serves until ctx is cancelled. The metadata connection is opened once
// here and torn down exactly once on the way out.
func Run(ctx context.Context, opt Options) error {
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	cfg := opt.Config

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.BlobRoot(), 0o700); err != nil {
		return err
	}

	meta, err := store.Open(ctx, cfg.DB.Path)
	if err != nil {
		return err
	}
	db := storage.New(meta, blob.New(cfg.BlobRoot()), lg)
	defer func() {
		if err := db.Close(); err != nil {
			lg.Error("close metadata store", "err", err)
		}
	}()

	api := &httpapi.Server{
		DB:             db,
		BindAddr:       cfg.HTTP.Bind,
		Port:           cfg.HTTP.Port,
		MaxUploadBytes: int64(cfg.HTTP.MaxUploadMB) << 20,
		Logger:         lg,
	}
	return api.Serve(ctx)
}
