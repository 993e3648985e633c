// Package cmd provides CLI commands for the warden binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/lode"
	"github.com/pithecene-io/warden/reviewer"
	"github.com/pithecene-io/warden/runtime"
	"github.com/pithecene-io/warden/sampler"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// storageFlags select the Lode dataset shared by run, replay and inspect.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "lode-backend",
			Usage: "Ledger storage backend: fs or s3",
			Value: "fs",
		},
		&cli.StringFlag{
			Name:  "lode-path",
			Usage: "Ledger storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "lode-dataset",
			Usage: "Lode dataset ID",
			Value: lode.DefaultDataset,
		},
		&cli.StringFlag{
			Name:  "lode-s3-region",
			Usage: "AWS region for the S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "lode-s3-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers (R2, MinIO)",
		},
		&cli.BoolFlag{
			Name:  "lode-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// adapterFlags configure the run-finished notification.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Run-finished adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint (webhook URL or redis://host:port/db)",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Extra webhook header as key=value (repeatable)",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt adapter timeout",
			Value: defaultAdapterTimeout,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Adapter retry attempts",
			Value: defaultAdapterRetries,
		},
	}
}

// reviewerFlags configure the judge endpoint, shared by run and replay.
func reviewerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "reviewer-url",
			Usage:   "Chat-completion API root of the reviewer",
			EnvVars: []string{"WARDEN_REVIEWER_URL"},
			Value:   reviewer.DefaultBaseURL,
		},
		&cli.StringFlag{
			Name:    "reviewer-model",
			Usage:   "Reviewer model name",
			EnvVars: []string{"WARDEN_REVIEWER_MODEL"},
			Value:   reviewer.DefaultModel,
		},
		&cli.StringFlag{
			Name:    "reviewer-api-key",
			Usage:   "Bearer token for the reviewer endpoint",
			EnvVars: []string{"WARDEN_REVIEWER_API_KEY"},
		},
		&cli.DurationFlag{
			Name:  "reviewer-timeout",
			Usage: "Per-request reviewer timeout",
			Value: reviewer.DefaultTimeout,
		},
		&cli.IntFlag{
			Name:  "reviewer-attempts",
			Usage: "Review attempts before falling back to continue",
			Value: reviewer.DefaultMaxAttempts,
		},
	}
}

// loopFlags configure the control loop, shared by run and replay.
func loopFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "max-iterations",
			Usage:   "Iteration budget",
			EnvVars: []string{"WARDEN_MAX_ITERATIONS"},
			Value:   runtime.DefaultMaxIterations,
		},
		&cli.StringFlag{
			Name:    "inactivity-timeout",
			Usage:   "Review after this much worker silence (duration or seconds)",
			EnvVars: []string{"WARDEN_INACTIVITY_TIMEOUT"},
			Value:   runtime.DefaultInactivityTimeout.String(),
		},
		&cli.IntFlag{
			Name:  "buffer-lines",
			Usage: "Sample buffer capacity in lines",
			Value: sampler.DefaultCapacity,
		},
		&cli.BoolFlag{
			Name:    "headless",
			Usage:   "Disable the live monitor",
			EnvVars: []string{"WARDEN_HEADLESS"},
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Write logs to this file instead of stderr",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Minimum log level: debug, info, warn or error",
			EnvVars: []string{"WARDEN_LOG_LEVEL"},
			Value:   "info",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON run report to this path (- for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
	}
}
