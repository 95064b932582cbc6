package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"pairings/internal/config"
	"pairings/internal/event"
	"pairings/internal/metrics"
	"pairings/internal/msr"
	"pairings/internal/render"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// newApp builds the CLI. The pairing sheet goes to app.Writer and
// diagnostics to app.ErrWriter.
func newApp() *cli.App {
	return &cli.App{
		Name:      "pairings",
		Usage:     "Print driver/instructor pairings of a MotorsportReg event by run group.",
		Flags:     flags(),
		Action:    run,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "org", Aliases: []string{"o"}, Usage: "Organization ID", EnvVars: []string{"MSR_ORG"}},
		&cli.StringFlag{Name: "event", Aliases: []string{"e"}, Usage: "Event ID", EnvVars: []string{"MSR_EVENT"}},
		&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "MotorsportReg username", EnvVars: []string{"MSR_USERNAME"}},
		&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "MotorsportReg password (prompted if omitted)", EnvVars: []string{"MSR_PASSWORD"}},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Verbose logging", EnvVars: []string{"MSR_VERBOSE"}},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"PAIRINGS_CONFIG"}},
		&cli.StringFlag{Name: "base-url", Usage: "API base URL", EnvVars: []string{"MSR_BASE_URL"}},
		&cli.DurationFlag{Name: "timeout", Usage: "Per-request timeout"},
		&cli.StringSliceFlag{Name: "group", Aliases: []string{"g"}, Usage: "Run group to print, repeatable; \"all\" prints every group (default: A B C D)"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: " + strings.Join(render.Formats, ", ")},
		&cli.StringFlag{Name: "metrics-file", Usage: "Write run metrics in Prometheus textfile format to this path"},
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(c, cfg)

	logger := setupLogger(c.App.ErrWriter, cfg.Verbose).With("run", uuid.NewString())
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Credentials.Password == "" {
		pw, err := promptPassword()
		if err != nil {
			return fmt.Errorf("no password given: %w", err)
		}
		cfg.Credentials.Password = pw
	}

	var rec *metrics.Recorder
	var observer msr.FetchObserver
	if cfg.Output.MetricsFile != "" {
		rec = metrics.New(cfg.EventID)
		observer = rec
	}

	client := msr.NewClient(logger, msr.Config{
		BaseURL:   cfg.API.BaseURL,
		OrgID:     cfg.Credentials.OrgID,
		Username:  cfg.Credentials.Username,
		Password:  cfg.Credentials.Password,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
		Observer:  observer,
	})

	ev, err := event.New(c.Context, logger, client, cfg.EventID)
	if rec != nil {
		if err == nil {
			rec.RecordJoin(ev.Stats())
		}
		if werr := rec.WriteFile(cfg.Output.MetricsFile); werr != nil {
			logger.Error("Failed to write metrics file", "path", cfg.Output.MetricsFile, "error", werr)
		}
	}
	if err != nil {
		return fmt.Errorf("event %s: %w", cfg.EventID, err)
	}

	stats := ev.Stats()
	logger.Info("Joined event records", "event", ev.EventID(), "attendees", stats.Attendees,
		"assignments", stats.Assignments, "unresolvedInstructors", stats.UnresolvedInstructors)

	codes := cfg.Output.Groups
	if cfg.AllGroups() {
		codes = ev.Groups()
	}
	groups := make([]render.Group, 0, len(codes))
	for _, code := range codes {
		groups = append(groups, render.Group{Code: code, Assignments: ev.GetGroup(code)})
	}

	return render.Write(c.App.Writer, cfg.Output.Format, groups)
}

// applyFlags overrides config file values with flags and environment variables.
func applyFlags(c *cli.Context, cfg *config.Config) {
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setString("org", &cfg.Credentials.OrgID)
	setString("event", &cfg.EventID)
	setString("username", &cfg.Credentials.Username)
	setString("password", &cfg.Credentials.Password)
	setString("base-url", &cfg.API.BaseURL)
	setString("format", &cfg.Output.Format)
	setString("metrics-file", &cfg.Output.MetricsFile)
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("timeout") {
		cfg.API.Timeout = c.Duration("timeout")
	}
	if c.IsSet("group") {
		cfg.Output.Groups = c.StringSlice("group")
	}
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, set --password or MSR_PASSWORD")
	}
	fmt.Fprint(os.Stderr, "MotorsportReg password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !color,
	}))
}
