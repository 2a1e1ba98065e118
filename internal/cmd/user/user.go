// Package user implements the `fss user` admin subcommands, the only way
// accounts are created and removed.
package user

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MenxLi/fss/internal/auth"
	"github.com/MenxLi/fss/internal/blob"
	"github.com/MenxLi/fss/internal/config"
	"github.com/MenxLi/fss/internal/storage"
	"github.com/MenxLi/fss/internal/store"
	"github.com/MenxLi/fss/internal/validate"
	"github.com/urfave/cli/v3"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage accounts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to fss.yaml"},
			&cli.StringFlag{Name: "data-dir", Usage: "data directory (catalog + blobs)"},
		},
		Commands: []*cli.Command{
			createCommand(),
			deleteCommand(),
			setCommand(),
			listCommand(),
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create an account",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "username"},
			&cli.StringArg{Name: "password"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "admin", Usage: "grant admin rights"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			username := cmd.StringArg("username")
			password := cmd.StringArg("password")
			if username == "" || password == "" {
				return fmt.Errorf("username and password are required")
			}
			if err := validate.Username(username); err != nil {
				return err
			}
			db, err := openDB(ctx, cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			id, err := db.CreateUser(ctx, username, hash, auth.Credential(username, password), cmd.Bool("admin"))
			if err != nil {
				return err
			}
			fmt.Printf("user %s created (id=%d)\n", username, id)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete an account and all of its files",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "username"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			username := cmd.StringArg("username")
			if username == "" {
				return fmt.Errorf("username is required")
			}
			db, err := openDB(ctx, cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if _, ok, err := db.GetUser(ctx, storage.ByName(username)); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("user %s not found", username)
			}
			if err := db.DeleteUser(ctx, storage.ByName(username)); err != nil {
				return err
			}
			fmt.Printf("user %s deleted\n", username)
			return nil
		},
	}
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:  "set",
		Usage: "Update an account's password or admin flag",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "username"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}},
			&cli.BoolFlag{Name: "admin", Aliases: []string{"a"}},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			username := cmd.StringArg("username")
			if username == "" {
				return fmt.Errorf("username is required")
			}
			db, err := openDB(ctx, cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			u, ok, err := db.GetUser(ctx, storage.ByName(username))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("user %s not found", username)
			}

			password, credential := u.Password, u.Credential
			if p := cmd.String("password"); p != "" {
				if password, err = auth.HashPassword(p); err != nil {
					return err
				}
				credential = auth.Credential(username, p)
			}
			isAdmin := u.IsAdmin
			if cmd.IsSet("admin") {
				isAdmin = cmd.Bool("admin")
			}
			if err := db.SetUser(ctx, username, password, credential, isAdmin); err != nil {
				return err
			}
			fmt.Printf("user %s updated\n", username)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List accounts",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			db, err := openDB(ctx, cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			users, err := db.ListUsers(ctx)
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Printf("%s (id=%d, admin=%t, created=%s, last_active=%s)\n",
					u.Username, u.ID, u.IsAdmin,
					time.Unix(u.CreateTime, 0).Format(time.RFC3339),
					time.Unix(u.LastActive, 0).Format(time.RFC3339))
			}
			return nil
		},
	}
}

// openDB opens the coordinator the same way the daemon does, from --config
// or --data-dir on the parent command.
func openDB(ctx context.Context, cmd *cli.Command) (*storage.Database, error) {
	cfg := config.Default()
	if p := cmd.String("config"); p != "" {
		var err error
		if cfg, err = config.Load(p); err != nil {
			return nil, err
		}
	}
	if d := cmd.String("data-dir"); d != "" {
		cfg.DataDir = d
		cfg.DB.Path = filepath.Join(d, "index.db")
	}
	if err := os.MkdirAll(cfg.BlobRoot(), 0o700); err != nil {
		return nil, err
	}
	meta, err := store.Open(ctx, cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	return storage.New(meta, blob.New(cfg.BlobRoot()), slog.Default()), nil
}
