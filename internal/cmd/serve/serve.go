// Package serve implements the `fss serve` subcommand.
package serve

import (
	"context"
	"path/filepath"

	"github.com/MenxLi/fss/internal/config"
	"github.com/MenxLi/fss/internal/daemon"
	"github.com/MenxLi/fss/internal/logging"
	"github.com/urfave/cli/v3"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the storage server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to fss.yaml"},
			&cli.StringFlag{Name: "bind", Usage: "bind address"},
			&cli.IntFlag{Name: "port", Usage: "listen port"},
			&cli.StringFlag{Name: "data-dir", Usage: "data directory (catalog + blobs)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lg, err := logging.New(logging.Options{
				Level:       cfg.Log.Level,
				JSON:        cfg.Log.JSON,
				DefaultSlog: true,
			})
			if err != nil {
				return err
			}
			return daemon.Run(ctx, daemon.Options{Config: cfg, Logger: lg})
		},
	}
}

// loadConfig builds the effective configuration: file values when --config
// is given, defaults otherwise, with flags overriding either.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if p := cmd.String("config"); p != "" {
		var err error
		if cfg, err = config.Load(p); err != nil {
			return config.Config{}, err
		}
	}
	if cmd.IsSet("bind") {
		cfg.HTTP.Bind = cmd.String("bind")
	}
	if cmd.IsSet("port") {
		cfg.HTTP.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("data-dir") {
		cfg.DataDir = cmd.String("data-dir")
		cfg.DB.Path = filepath.Join(cfg.DataDir, "index.db")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	return cfg, nil
}
