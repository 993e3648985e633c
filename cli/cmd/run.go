package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	wardenconfig "github.com/pithecene-io/warden/cli/config"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/runtime"
	"github.com/pithecene-io/warden/transcript"
	"github.com/pithecene-io/warden/worker"
	"github.com/pithecene-io/warden/worker/opencode"
)

// RunCommand returns the run command.
// Arguments after -- are passed through to `opencode serve`.
func RunCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a warden.yaml config file",
		},
		&cli.StringFlag{
			Name:    "task",
			Aliases: []string{"t"},
			Usage:   "Task given to the worker",
			EnvVars: []string{"WARDEN_TASK"},
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run ID (default: random UUID)",
		},
		&cli.StringFlag{
			Name:  "work-dir",
			Usage: "Working directory of the worker",
			Value: ".",
		},
		&cli.StringFlag{
			Name:    "worker-model",
			Usage:   "Model passed to opencode serve",
			EnvVars: []string{"WARDEN_WORKER_MODEL"},
			Value:   defaultWorkerModel,
		},
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "Attach to a running OpenCode server instead of spawning one",
			EnvVars: []string{"WARDEN_SERVER_URL"},
		},
		&cli.StringFlag{
			Name:  "opencode-binary",
			Usage: "OpenCode executable",
			Value: opencode.DefaultBinary,
		},
		&cli.DurationFlag{
			Name:  "startup-timeout",
			Usage: "How long to wait for the spawned server to become healthy",
			Value: opencode.DefaultStartupTimeout,
		},
		&cli.StringFlag{
			Name:  "record",
			Usage: "Record worker events to a transcript file",
		},
	}
	flags = append(flags, loopFlags()...)
	flags = append(flags, reviewerFlags()...)
	flags = append(flags, storageFlags()...)
	flags = append(flags, adapterFlags()...)

	return &cli.Command{
		Name:      "run",
		Usage:     "Supervise an OpenCode worker on a task",
		ArgsUsage: "[-- opencode serve args...]",
		Flags:     flags,
		Action:    runAction,
	}
}

// defaultWorkerModel is the worker model used when none is given.
const defaultWorkerModel = "ollama/llama3.1"

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return configExit(err)
	}

	task := resolveString(c, "task", configVal(cfg, func(c *wardenconfig.Config) string { return c.Task }))
	if strings.TrimSpace(task) == "" {
		return configExit(errors.New("--task is required (flag, WARDEN_TASK, or task: in config)"))
	}
	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, cleanup, err := newSession(ctx, c, cfg, runID, "opencode")
	if err != nil {
		return err
	}
	defer cleanup()
	s.runCfg.Task = task

	w, stop, err := startWorker(ctx, c, cfg, s.logger)
	if err != nil {
		s.close()
		return cli.Exit(fmt.Sprintf("worker setup failed: %v", err), runtime.ExitCodeSetupFailure)
	}
	defer stop()

	var rec *transcript.Recorder
	if path := resolveString(c, "record", configVal(cfg, func(c *wardenconfig.Config) string { return c.Record })); path != "" {
		f, err := os.Create(path)
		if err != nil {
			s.close()
			return configExit(fmt.Errorf("cannot create --record file: %w", err))
		}
		defer func() { _ = f.Close() }()
		rec = transcript.NewRecorder(w, f, transcript.RecorderOptions{RunID: runID, Logger: s.logger.With("transcript")})
		w = rec
	}
	s.runCfg.Worker = w

	err = s.execute(ctx, cancel)
	if rec != nil {
		if recErr := rec.Err(); recErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: transcript incomplete: %v\n", recErr)
		} else {
			s.logger.Info("transcript recorded", map[string]any{"frames": rec.Frames()})
		}
	}
	return err
}

// startWorker attaches to --server-url or spawns a scoped OpenCode server.
// The returned stop func reaps the spawned server.
func startWorker(ctx context.Context, c *cli.Context, cfg *wardenconfig.Config, logger *log.Logger) (worker.Worker, func(), error) {
	stop := func() {}
	serverURL := resolveString(c, "server-url", configVal(cfg, func(c *wardenconfig.Config) string { return c.Worker.ServerURL }))

	if serverURL == "" {
		extra := slices.Concat(configVal(cfg, func(c *wardenconfig.Config) []string { return c.Worker.ExtraArgs }), c.Args().Slice())
		srv, err := opencode.StartServer(ctx, opencode.ServerConfig{
			Binary:         resolveString(c, "opencode-binary", configVal(cfg, func(c *wardenconfig.Config) string { return c.Worker.Binary })),
			Model:          resolveString(c, "worker-model", configVal(cfg, func(c *wardenconfig.Config) string { return c.Worker.Model })),
			WorkDir:        resolveString(c, "work-dir", configVal(cfg, func(c *wardenconfig.Config) string { return c.WorkDir })),
			ExtraArgs:      extra,
			StartupTimeout: resolveDuration(c, "startup-timeout", configVal(cfg, func(c *wardenconfig.Config) wardenconfig.Duration { return c.Worker.StartupTimeout }).Duration),
			Logger:         logger.With("opencode"),
		})
		if err != nil {
			return nil, stop, err
		}
		stop = func() {
			if err := srv.Close(); err != nil {
				logger.Warn("opencode server shutdown", map[string]any{"error": err.Error()})
			}
		}
		serverURL = srv.BaseURL()
	}

	client, err := opencode.NewClient(opencode.ClientConfig{
		BaseURL: serverURL,
		Logger:  logger.With("opencode"),
	})
	if err != nil {
		stop()
		return nil, func() {}, err
	}
	return client, stop, nil
}
