package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"mediasync/internal/config"
	"mediasync/internal/engine"
	"mediasync/internal/remote"
	"mediasync/internal/remote/dropbox"
	"mediasync/internal/remote/s3"
	"mediasync/internal/store"
	"mediasync/internal/watcher"
	"mediasync/internal/webhook"
	"mediasync/pkg/models"
	"mediasync/pkg/utils"
	"mediasync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file",
		Value:   "mediasync.yml",
	}

	app := &cli.App{
		Name:                 "mediasync",
		Usage:                "Three-way sync between a local media tree, a remote store and gallery fields",
		Version:              version.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "run",
				Usage: "Run one synchronization pass and exit",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "direction",
						Usage: "both, to_remote or from_remote",
						Value: string(models.DirectionBoth),
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel upload workers",
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Show an upload progress bar",
					},
				},
				Action: runOnce,
			},
			{
				Name:   "watch",
				Usage:  "Run continuously: periodic syncs, filesystem watch and webhook listener",
				Flags:  []cli.Flag{configFlag},
				Action: runWatch,
			},
			{
				Name:   "status",
				Usage:  "Show the last run's state",
				Flags:  []cli.Flag{configFlag},
				Action: showStatus,
			},
			{
				Name:  "mapping",
				Usage: "Manage folder to gallery-field mappings",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Map a folder onto a gallery field",
						Flags: []cli.Flag{
							configFlag,
							&cli.Int64Flag{Name: "folder", Usage: "Folder id", Required: true},
							&cli.StringFlag{Name: "field", Usage: "Gallery field key", Required: true},
							&cli.Int64Flag{Name: "target", Usage: "Target record id", Required: true},
						},
						Action: addMapping,
					},
					{
						Name:   "list",
						Usage:  "List mappings",
						Flags:  []cli.Flag{configFlag},
						Action: listMappings,
					},
					{
						Name:  "remove",
						Usage: "Remove a mapping by id",
						Flags: []cli.Flag{
							configFlag,
							&cli.Int64Flag{Name: "id", Usage: "Mapping id", Required: true},
						},
						Action: removeMapping,
					},
				},
			},
			{
				Name:  "log",
				Usage: "Show recent sync activity",
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{Name: "n", Usage: "Number of entries", Value: 20},
				},
				Action: showLog,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// app bundles the wired components a command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
}

func (a *app) close() {
	a.engine.Stop()
	a.store.Close()
}

func setup(c *cli.Context, showProgress bool) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Log)

	st, err := store.Open(cfg.DBPath, cfg.ActivityLogCap)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	rs, err := openRemote(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	workers := cfg.Workers
	if c.IsSet("workers") {
		workers = c.Int("workers")
	}
	eng := engine.New(rs, st, st, st, st, st, engine.Config{
		RootPath:          cfg.RootPath,
		ConflictPolicy:    cfg.ConflictPolicy,
		AllowedExtensions: cfg.NormalizedExtensions(),
		ContentRoot:       cfg.ContentRoot,
		StagingDir:        cfg.StagingDir,
		Workers:           workers,
		ShowProgress:      showProgress,
	}, logger)
	st.SetObserver(eng)

	return &app{cfg: cfg, logger: logger, store: st, engine: eng}, nil
}

// openRemote picks the backend named in the config.
func openRemote(cfg *config.Config, logger *slog.Logger) (remote.Store, error) {
	switch cfg.Remote.Backend {
	case "dropbox":
		token := cfg.Remote.AccessToken
		// A previously refreshed token outlives the one in the config file.
		tokenFile := cfg.DBPath + ".token"
		if data, err := os.ReadFile(tokenFile); err == nil {
			if t := strings.TrimSpace(string(data)); t != "" {
				token = t
			}
		}
		return dropbox.New(dropbox.Options{
			APIBase:      cfg.Remote.APIBase,
			ContentBase:  cfg.Remote.ContentBase,
			AppKey:       cfg.Remote.AppKey,
			AppSecret:    cfg.Remote.AppSecret,
			AccessToken:  token,
			RefreshToken: cfg.Remote.RefreshToken,
			Saver: func(accessToken string) error {
				return os.WriteFile(tokenFile, []byte(accessToken), 0o600)
			},
			Logger: logger,
		}), nil
	case "s3":
		return s3.New(s3.Options{
			Endpoint:  cfg.Remote.Endpoint,
			Bucket:    cfg.Remote.Bucket,
			AccessKey: cfg.Remote.AccessKey,
			SecretKey: cfg.Remote.SecretKey,
			UseSSL:    cfg.Remote.UseSSL,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

func runOnce(c *cli.Context) error {
	direction := models.Direction(c.String("direction"))
	if !direction.Valid() {
		return fmt.Errorf("unknown direction %q", c.String("direction"))
	}

	a, err := setup(c, c.Bool("progress"))
	if err != nil {
		return err
	}
	defer a.close()

	start := time.Now()
	if err := a.engine.RunSync(context.Background(), direction); err != nil {
		return err
	}

	state, err := a.engine.Status()
	if err != nil {
		return err
	}
	fmt.Printf("Sync %s in %s\n", state.Status, utils.FormatDuration(time.Since(start)))
	if state.LastError != "" {
		fmt.Printf("Errors: %s\n", state.LastError)
	}
	return nil
}

func runWatch(c *cli.Context) error {
	a, err := setup(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	w, err := watcher.New(a.cfg.ContentRoot, a.cfg.NormalizedExtensions(), a.engine, 0, a.logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	hook := webhook.NewServer(a.cfg.WebhookAddr, a.engine, a.logger)
	if err := hook.Start(); err != nil {
		return fmt.Errorf("start webhook listener: %w", err)
	}
	defer hook.Stop()

	ticker := time.NewTicker(a.cfg.SyncFrequency)
	defer ticker.Stop()

	// Catch up immediately rather than waiting a full period.
	a.engine.ScheduleSync(models.DirectionBoth)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("mediasync watching %s (webhook on %s), Ctrl-C to stop\n", a.cfg.ContentRoot, hook.Addr())
	for {
		select {
		case <-ticker.C:
			a.engine.ScheduleSync(models.DirectionBoth)
		case s := <-sig:
			fmt.Printf("received %s, shutting down\n", s)
			return nil
		}
	}
}

func showStatus(c *cli.Context) error {
	a, err := setup(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	state, err := a.engine.Status()
	if err != nil {
		return err
	}

	fmt.Printf("Status:    %s\n", state.Status)
	if state.Direction != "" {
		fmt.Printf("Direction: %s\n", state.Direction)
	}
	if state.Running {
		fmt.Println("A sync run is in progress")
	}
	if !state.CompletedAt.IsZero() {
		fmt.Printf("Last run:  %s\n", state.CompletedAt.Local().Format(time.RFC1123))
	}
	if state.LastError != "" {
		fmt.Printf("Errors:    %s\n", state.LastError)
	}
	return nil
}

func addMapping(c *cli.Context) error {
	a, err := setup(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.store.CreateMapping(c.Int64("folder"), c.String("field"), c.Int64("target"))
	if err != nil {
		if err == store.ErrDuplicateMapping {
			return fmt.Errorf("that folder is already mapped to field %q on record %d",
				c.String("field"), c.Int64("target"))
		}
		return err
	}
	fmt.Printf("Mapping %d created: folder %d -> field %q on record %d\n",
		m.ID, m.FolderID, m.FieldKey, m.TargetID)
	return nil
}

func listMappings(c *cli.Context) error {
	a, err := setup(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	mappings, err := a.store.Mappings()
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		fmt.Println("No mappings configured")
		return nil
	}
	for _, m := range mappings {
		name := fmt.Sprintf("folder %d", m.FolderID)
		if f, err := a.store.GetFolder(m.FolderID); err == nil {
			name = fmt.Sprintf("folder %d (%s)", f.ID, f.Name)
		}
		fmt.Printf("%4d  %s -> field %q on record %d\n", m.ID, name, m.FieldKey, m.TargetID)
	}
	return nil
}

func removeMapping(c *cli.Context) error {
	a, err := setup(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.DeleteMapping(c.Int64("id")); err != nil {
		return err
	}
	fmt.Printf("Mapping %d removed\n", c.Int64("id"))
	return nil
}

func showLog(c *cli.Context) error {
	a, err := setup(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.store.Recent(c.Int("n"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %-7s %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			strings.ToUpper(e.Level), e.Message)
	}
	return nil
}
