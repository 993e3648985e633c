package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/render"
	"github.com/pithecene-io/warden/cli/tui"
	"github.com/pithecene-io/warden/lode"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect reads exported ledgers back from a Lode dataset; it never
// contacts a worker or reviewer.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect exported run ledgers",
		Subcommands: []*cli.Command{
			inspectRunCommand(),
			inspectRunsCommand(),
		},
	}
}

func inspectFlags() []cli.Flag {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a warden.yaml config file (storage section)",
		},
	}, TUIReadOnlyFlags()...)
	return append(flags, storageFlags()...)
}

func inspectRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Show the iteration ledger and summary of one run",
		ArgsUsage: "<run-id>",
		Flags:     inspectFlags(),
		Action:    inspectRunAction,
	}
}

func inspectRunAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("run-id required", 1)
	}
	runID := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	sc, err := inspectStorage(c)
	if err != nil {
		return err
	}

	ds, err := openReadDataset(c.Context, sc)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	ledger, err := lode.QueryRun(c.Context, ds, runID)
	if errors.Is(err, lode.ErrRunNotFound) {
		return cli.Exit(fmt.Sprintf("run %s not found in dataset %s", runID, sc.dataset), 1)
	}
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectRun, ledger)
	}
	return r.Render(ledger)
}

func inspectRunsCommand() *cli.Command {
	return &cli.Command{
		Name:   "runs",
		Usage:  "List run summaries, newest first",
		Flags:  inspectFlags(),
		Action: inspectRunsAction,
	}
}

func inspectRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	sc, err := inspectStorage(c)
	if err != nil {
		return err
	}

	ds, err := openReadDataset(c.Context, sc)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	runs, err := lode.ListRuns(c.Context, ds)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectRuns, runs)
	}
	return r.Render(runs)
}

// inspectStorage resolves the dataset location; inspect has nothing to read
// without one.
func inspectStorage(c *cli.Context) (storageChoice, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return storageChoice{}, err
	}
	sc, err := resolveStorage(c, cfg)
	if err != nil {
		return sc, err
	}
	if !sc.enabled() {
		return sc, errors.New("--lode-path is required (or storage.path in config)")
	}
	return sc, nil
}
