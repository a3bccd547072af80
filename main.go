package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/logger"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "docrag",
		Usage: "Document ingestion, invoice extraction and semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides LOG_LEVEL",
			},
		},
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
			},
			{
				Name:   "ingest",
				Usage:  "Index a file or directory synchronously",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "path",
						Aliases:  []string{"p"},
						Usage:    "File or directory to index",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "ocr",
						Usage: "Rasterize PDFs and OCR them instead of reading the text layer",
					},
					&cli.StringFlag{
						Name:  "owner",
						Usage: "Owner id recorded on extracted invoices",
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: migrateCommand,
			},
		},
	}
}

// setup loads configuration and installs the default logger.
func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	log := logger.New(os.Stdout, level)
	slog.SetDefault(log)
	return cfg, log, nil
}

func serveCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, log)
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn("failed to close dependencies", "error", err)
		}
	}()

	a, err := app.New(cfg, deps, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func ingestCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	path := c.String("path")

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps, log)
	if err != nil {
		return err
	}

	var chunks int
	if info.IsDir() {
		chunks, err = a.Ingest.ProcessDirectory(ctx, path)
	} else {
		chunks, err = a.Ingest.ProcessFile(ctx, path, c.Bool("ocr"), c.String("owner"))
	}
	err = errors.Join(err, a.Close())
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Indexed %d chunks from %s\n", chunks, path)
	return nil
}

func migrateCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	db, err := app.OpenDatabase(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := app.Migrate(db, cfg.MigrationPath); err != nil {
		return err
	}
	log.Info("migrations applied successfully")
	return nil
}
