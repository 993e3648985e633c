package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	wardenconfig "github.com/pithecene-io/warden/cli/config"
	"github.com/pithecene-io/warden/lode"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/metrics"
	"github.com/pithecene-io/warden/reviewer"
	"github.com/pithecene-io/warden/runtime"
)

// isTTY returns true if f is a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// newSession resolves everything run and replay share: loop settings,
// logging, the reviewer, metrics and the post-run sinks. The caller fills
// Task and Worker. cleanup must be called once the session is done.
func newSession(ctx context.Context, c *cli.Context, cfg *wardenconfig.Config, runID, workerName string) (s *session, cleanup func(), err error) {
	cleanup = func() {}

	headless := resolveBool(c, "headless", configVal(cfg, func(c *wardenconfig.Config) bool { return c.Headless }))
	if !headless && !isTTY(os.Stdout) {
		headless = true
	}

	logger := log.NewLogger(runID)
	logFile := resolveString(c, "log-file", configVal(cfg, func(c *wardenconfig.Config) string { return c.LogFile }))
	if logFile == "" && !headless {
		// the monitor owns the terminal
		logFile = filepath.Join(os.TempDir(), "warden-"+runID+".log")
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, configExit(fmt.Errorf("cannot open --log-file: %w", err))
		}
		cleanup = func() { _ = f.Close() }
		logger = logger.WithOutput(f)
	}
	fail := func(err error) (*session, func(), error) {
		cleanup()
		return nil, func() {}, configExit(err)
	}
	if err := logger.SetLevel(resolveString(c, "log-level", configVal(cfg, func(c *wardenconfig.Config) string { return c.LogLevel }))); err != nil {
		return fail(err)
	}

	maxIterations := resolveInt(c, "max-iterations", configVal(cfg, func(c *wardenconfig.Config) int { return c.MaxIterations }))
	inactivity, err := resolveTimeout(c, "inactivity-timeout", configVal(cfg, func(c *wardenconfig.Config) wardenconfig.Duration { return c.InactivityTimeout }).Duration)
	if err != nil {
		return fail(err)
	}
	bufferLines := resolveInt(c, "buffer-lines", configVal(cfg, func(c *wardenconfig.Config) int { return c.BufferLines }))

	rev, err := reviewer.New(reviewer.Config{
		BaseURL:     resolveString(c, "reviewer-url", configVal(cfg, func(c *wardenconfig.Config) string { return c.Reviewer.URL })),
		Model:       resolveString(c, "reviewer-model", configVal(cfg, func(c *wardenconfig.Config) string { return c.Reviewer.Model })),
		APIKey:      resolveString(c, "reviewer-api-key", configVal(cfg, func(c *wardenconfig.Config) string { return c.Reviewer.APIKey })),
		Timeout:     resolveDuration(c, "reviewer-timeout", configVal(cfg, func(c *wardenconfig.Config) wardenconfig.Duration { return c.Reviewer.Timeout }).Duration),
		MaxAttempts: resolveInt(c, "reviewer-attempts", configVal(cfg, func(c *wardenconfig.Config) int { return c.Reviewer.MaxAttempts })),
		Logger:      logger.With("reviewer"),
	})
	if err != nil {
		return fail(fmt.Errorf("invalid reviewer config: %w", err))
	}

	storage, err := resolveStorage(c, cfg)
	if err != nil {
		return fail(err)
	}
	var backend string
	if storage.enabled() {
		backend = storage.backend
	}
	collector := metrics.NewCollector(workerName, rev.Model(), backend, runID)

	ac, err := resolveAdapter(c, cfg)
	if err != nil {
		return fail(err)
	}

	s = &session{
		runCfg: &runtime.RunConfig{
			RunID:             runID,
			MaxIterations:     maxIterations,
			InactivityTimeout: inactivity,
			BufferLines:       bufferLines,
			Reviewer:          rev,
			Collector:         collector,
			Logger:            logger,
		},
		logger:    logger,
		collector: collector,
		headless:  headless,
		quiet:     c.Bool("quiet"),
		out:       os.Stdout,
		report:    resolveString(c, "report", configVal(cfg, func(c *wardenconfig.Config) string { return c.Report })),
		storage:   storage,
	}

	if storage.enabled() {
		// the partition day is fixed at start
		s.lodeDay = lode.DeriveDay(time.Now())
		client, err := buildLodeClient(ctx, storage, s.lodeDay, runID)
		if err != nil {
			return fail(fmt.Errorf("failed to open ledger storage: %w", err))
		}
		s.lodeClient = client
	}
	if ac != nil {
		a, err := buildAdapter(ac)
		if err != nil {
			s.close()
			return fail(fmt.Errorf("invalid adapter config: %w", err))
		}
		s.adapter = a
	}

	return s, cleanup, nil
}
