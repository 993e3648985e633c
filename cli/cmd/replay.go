package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/transcript"
)

// ReplayCommand returns the replay command. It drives the control loop from
// a recorded transcript instead of a live worker, so reviewer prompts and
// loop settings can be tried against a known event stream.
func ReplayCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a warden.yaml config file",
		},
		&cli.StringFlag{
			Name:     "transcript",
			Usage:    "Transcript file written by warden run --record",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "task",
			Usage: "Override the task stored in the transcript header",
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run ID (default: random UUID)",
		},
		&cli.Float64Flag{
			Name:  "speed",
			Usage: "Replay pacing: 0 delivers events back to back, 1 keeps recorded timing",
		},
		&cli.DurationFlag{
			Name:  "max-gap",
			Usage: "Cap on each paced pause",
			Value: transcript.DefaultMaxGap,
		},
	}
	flags = append(flags, loopFlags()...)
	flags = append(flags, reviewerFlags()...)
	flags = append(flags, storageFlags()...)
	flags = append(flags, adapterFlags()...)

	return &cli.Command{
		Name:   "replay",
		Usage:  "Supervise a recorded transcript",
		Flags:  flags,
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return configExit(err)
	}
	if c.Float64("speed") < 0 {
		return configExit(fmt.Errorf("--speed must be >= 0, got %v", c.Float64("speed")))
	}
	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, cleanup, err := newSession(ctx, c, cfg, runID, "replay")
	if err != nil {
		return err
	}
	defer cleanup()

	path := c.String("transcript")
	rep, err := transcript.Open(path, transcript.ReplayOptions{
		Speed:     c.Float64("speed"),
		MaxGap:    c.Duration("max-gap"),
		Logger:    s.logger.With("transcript"),
		Collector: s.collector,
	})
	if err != nil {
		s.close()
		return configExit(fmt.Errorf("cannot load transcript: %w", err))
	}

	header := rep.Header()
	task := c.String("task")
	if task == "" {
		task = header.Task
	}

	s.runCfg.Task = task
	s.runCfg.Worker = rep
	s.runCfg.StopWhenDrained = true
	s.logger.Info("replaying transcript", map[string]any{
		"path":         path,
		"frames":       rep.Len(),
		"recorded_run": header.RunID,
		"recorded_at":  header.RecordedAt,
	})

	return s.execute(ctx, cancel)
}
