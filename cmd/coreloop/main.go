package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/coreloop/internal/config"
	"github.com/l1jgo/coreloop/internal/debugsrv"
	"github.com/l1jgo/coreloop/internal/host"
	"github.com/l1jgo/coreloop/internal/persist"
	"github.com/l1jgo/coreloop/internal/scene"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "v0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CORELOOP_CONFIG"); p != "" {
		return p
	}
	return "config/coreloop.toml"
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "coreloop",
		Short:        "Per-frame task scheduler host",
		Long:         "coreloop drives Lua-scripted tasks through fixed update, update and late update every frame.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "config file (or CORELOOP_CONFIG env)")

	root.AddCommand(newRunCmd(&cfgPath), newCheckCmd(&cfgPath))
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the frame loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfgPath)
		},
	}
}

func newCheckCmd(cfgPath *string) *cobra.Command {
	var frames int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a number of headless frames and print queue stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(*cfgPath, frames)
		},
	}
	cmd.Flags().IntVar(&frames, "frames", 600, "frames to run")
	return cmd
}

// boot loads the config, logger and scene shared by every command.
func boot(cfgPath string) (*config.Config, *zap.Logger, *scene.Scene, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	sc, err := scene.LoadScene(cfg.Scripts.Scene)
	if err != nil {
		log.Sync()
		return nil, nil, nil, fmt.Errorf("load scene: %w", err)
	}
	return cfg, log, sc, nil
}

func run(ctx context.Context, cfgPath string) error {
	cfg, log, sc, err := boot(cfgPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	out := console{w: os.Stdout}
	out.banner(version)

	session := uuid.New()
	opts := []host.Option{host.WithSession(session)}

	if cfg.Journal.Enabled {
		out.section("journal")
		j, closeDB, err := openJournal(ctx, cfg.Journal, session, log)
		if err != nil {
			return err
		}
		defer closeDB()
		opts = append(opts, host.WithJournal(j))
		out.ok("PostgreSQL journal ready")
	}
	var dbg *debugsrv.Server
	if cfg.Debug.Enabled {
		dbg = debugsrv.New(cfg.Debug.BindAddress, log)
		opts = append(opts, host.WithDebugServer(dbg))
	}

	h, err := host.New(cfg, log, opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	out.section("scene")
	n, err := h.Spawn(sc)
	if err != nil {
		return err
	}
	out.stat("entries", uint64(len(sc.Entries)))
	out.stat("tasks", uint64(n))
	fmt.Println()

	out.section("ready")
	out.ready(fmt.Sprintf("frame loop (frame: %s, fixed step: %s)", cfg.Loop.FrameRate, cfg.Loop.FixedStep))
	if dbg != nil {
		out.ready("debug server " + cfg.Debug.BindAddress)
	}
	out.ready("session " + session.String())
	fmt.Println()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := h.Run(ctx); err != nil {
		return err
	}

	t := h.Totals()
	log.Info("stopped",
		zap.Uint64("frames", t.Frames),
		zap.Uint64("invocations", t.Invoked),
		zap.Uint64("faults", t.Faults),
	)
	return nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig, session uuid.UUID, log *zap.Logger) (*persist.Journal, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("journal database: %w", err)
	}
	if err := persist.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	repo := persist.NewJournalRepo(db)
	if err := repo.StartSession(ctx, session); err != nil {
		db.Close()
		return nil, nil, err
	}
	return persist.NewJournal(session, repo, cfg.QueueSize, log), db.Close, nil
}

func check(cfgPath string, frames int) error {
	cfg, log, sc, err := boot(cfgPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	h, err := host.New(cfg, log)
	if err != nil {
		return err
	}
	defer h.Close()
	if _, err := h.Spawn(sc); err != nil {
		return err
	}

	start := time.Now()
	t := h.RunFrames(frames)
	elapsed := time.Since(start)

	out := console{w: os.Stdout}
	out.section("frames")
	out.stat("frames", t.Frames)
	out.stat("fixed steps", t.FixedSteps)
	out.stat("invocations", t.Invoked)
	out.stat("faults", t.Faults)
	for _, st := range h.Scheduler().Stats() {
		out.section(st.Phase)
		out.stat("resident", uint64(st.Resident))
		out.stat("capacity", uint64(st.Capacity))
		out.stat("invocations", st.Invocations)
		out.stat("growths", st.Growths)
		out.stat("sorts", st.Sorts)
	}
	out.ok(fmt.Sprintf("%d frames in %s", frames, elapsed.Round(time.Millisecond)))

	if t.Faults > 0 {
		return fmt.Errorf("%d task faults", t.Faults)
	}
	return nil
}
