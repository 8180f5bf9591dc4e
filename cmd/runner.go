package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/tasks"
	"github.com/urfave/cli/v3"
)

// closeTimeout bounds how long a command waits for in-flight transactions when it exits.
const closeTimeout = 10 * time.Second

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	progress   io.Writer
	metrics    *http.Server
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer // Command results
	Progress   io.Writer // Progress bars, kept apart from results so they can be piped
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Progress == nil {
		opts.Progress = os.Stderr
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		progress:   opts.Progress,
	}
}

// SetLogger swaps the logger, e.g. for a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, importCommand, listCommand, queryCommand, playlistCommand, removeCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config, applies the log level and starts the metrics listener.
//
// A missing config file is not an error: defaults apply until `cadence setup` writes one.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if err := r.loadConfig(); err != nil {
		return ctx, err
	}

	if level := cmd.String("log-level"); level != "" {
		r.config.Log.Level = level
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))

	addr := cmd.String("metrics-addr")
	if addr == "" {
		addr = r.config.Metrics.Addr
	}
	if addr != "" {
		r.serveMetrics(addr)
	}
	return ctx, nil
}

// After stops the metrics listener.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	if r.metrics == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.metrics.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down metrics server", "error", err)
	}
	r.metrics = nil
	return nil
}

func (r *Runner) loadConfig() error {
	if r.configPath == "" {
		return nil
	}
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return err
	}
	r.config = config
	return nil
}

func (r *Runner) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	r.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := r.metrics
	go func() {
		r.logger.Infof("serving metrics at http://%v/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// session is an open library for the lifetime of one command.
type session struct {
	*tasks.LibraryContext
	resaver *tasks.Resaver
}

// open opens the configured database, loads the library index and starts the resaver.
func (r *Runner) open(ctx context.Context) (*session, error) {
	opts, err := database.OptionsFromConfig(r.config, r.logger)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	lc := tasks.NewLibraryContext(db, r.logger, tasks.OptionsFromConfig(r.config))
	if err := lc.LoadLibrary(ctx); err != nil {
		db.Close()
		return nil, err
	}

	r.logger.Debug("library opened", "path", opts.Path, "tracks", lc.Library.Len())
	return &session{LibraryContext: lc, resaver: tasks.NewResaver(lc)}, nil
}

// close stops the resaver, drains the manager and closes the database.
func (r *Runner) close(s *session) {
	s.resaver.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		r.logger.Warn("transactions still running at exit", "error", err)
	}
	if err := s.DB.Close(); err != nil {
		r.logger.Warn("failed to close database", "error", err)
	}
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
