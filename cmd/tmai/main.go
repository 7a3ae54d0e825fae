package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/tmai/tmai/internal/approve"
	"github.com/tmai/tmai/internal/audit"
	"github.com/tmai/tmai/internal/command"
	"github.com/tmai/tmai/internal/config"
	"github.com/tmai/tmai/internal/config/prefs"
	"github.com/tmai/tmai/internal/multiplex"
	"github.com/tmai/tmai/internal/poller"
	"github.com/tmai/tmai/internal/statefile"
	"github.com/tmai/tmai/internal/store"
)

// Version is set at build time via ldflags
var Version = ""

var (
	configPath   = flag.String("config", "", "path to config file")
	debugFlag    = flag.Bool("debug", false, "enable debug logging")
	versionFlag  = flag.Bool("version", false, "print version and exit")
	shortVersion = flag.Bool("v", false, "print version and exit (short)")
	attachedOnly = flag.Bool("attached-only", false, "monitor only attached tmux sessions")
	printJSON    = flag.Bool("json", false, "print the agent snapshot as JSON each cycle")
)

func main() {
	flag.Parse()

	if *versionFlag || *shortVersion {
		fmt.Printf("tmai version %s\n", effectiveVersion(Version))
		os.Exit(0)
	}

	// Setup logging to file (never to stderr - it leaks through the
	// monitored terminal)
	logLevel := slog.LevelInfo
	if *debugFlag {
		logLevel = slog.LevelDebug
	}
	var logWriter io.Writer = io.Discard
	if logFile, err := openLogFile(); err == nil {
		logWriter = logFile
		defer logFile.Close()
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *attachedOnly {
		cfg.Poll.AttachedOnly = true
	}

	mux := multiplex.WithCaptureLines(cfg.Poll.CaptureLines)
	if !mux.IsAvailable() {
		fmt.Fprintln(os.Stderr, "tmai: no tmux server reachable")
		os.Exit(1)
	}

	st := store.New()

	// Restore persisted operator preferences (ignore errors - prefs
	// are optional).
	_ = prefs.Init()
	st.SetSortMode(store.ParseSortMode(prefs.GetSortMode()))

	stateRoot, err := statefile.Root()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prepare state dir: %v\n", err)
		os.Exit(1)
	}
	auditLog, err := audit.NewLogger(filepath.Join(stateRoot, "audit"), cfg.Audit.Enabled, cfg.Audit.MaxSizeBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open audit log: %v\n", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	p := poller.New(poller.Options{
		Config:   cfg,
		Mux:      multiplex.NewBatchCapturer(mux),
		Store:    st,
		Logger:   auditLog,
		Settings: config.NewSettingsCache(),
	})

	facade := command.New(st, mux, p.Submit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Approve.Enabled {
		var escalate approve.Judge
		if cfg.Approve.Judge.Enabled {
			escalate = approve.NewCommandJudge(cfg.Approve.Judge.Command, cfg.Approve.Judge.Args)
		}
		chain := approve.NewChain(approve.NewRuleEngine(cfg.Approve), escalate)
		masker := audit.NewMasker(cfg.Audit.SensitivePatterns)
		svc := approve.NewService(cfg.Approve, st, facade, chain, masker, p.Submit)
		go svc.Run(ctx)
	}

	// Reload detector overrides and rule flags when the config file
	// changes on disk.
	if watcher, err := config.WatchConfig(); err == nil {
		defer watcher.Close()
		go func() {
			for range watcher.Changes() {
				slog.Info("config reloaded")
			}
		}()
	}

	go p.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if *printJSON {
		go printSnapshots(ctx, st, cfg.Poll.Interval)
	}

	<-sig
	st.Stop()
	cancel()

	_ = prefs.SetSortMode(st.SortModeValue().String())
	if selected := st.Selected(); selected != "" {
		_ = prefs.SetSelected(selected)
	}
}

// printSnapshots streams the ordered agent list to stdout, the
// headless stand-in for the TUI.
func printSnapshots(ctx context.Context, st *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			type line struct {
				Target string `json:"target"`
				Type   string `json:"agent_type"`
				Status string `json:"status"`
			}
			var out []line
			for _, a := range st.Snapshot() {
				out = append(out, line{Target: a.Target, Type: a.AgentType.ShortName(), Status: a.Status.Name()})
			}
			_ = enc.Encode(out)
		}
	}
}

func openLogFile() (*os.File, error) {
	logPath := filepath.Join(filepath.Dir(config.ConfigPath()), "debug.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func effectiveVersion(v string) string {
	if v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	var revision string
	var dirty bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if revision != "" {
		ver := "devel+" + revision
		if len(ver) > 20 {
			ver = ver[:20]
		}
		if dirty {
			ver += "+dirty"
		}
		return ver
	}
	return "devel"
}
