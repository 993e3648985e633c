package cmd

import (
	goruntime "runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/render"
	"github.com/pithecene-io/warden/types"
)

// VersionResponse is the output of `warden version`.
type VersionResponse struct {
	Version         string `json:"version"`
	ContractVersion string `json:"contract_version"`
	Commit          string `json:"commit"`
	GoVersion       string `json:"go_version"`
	Platform        string `json:"platform"`
}

func versionInfo(commit string) VersionResponse {
	return VersionResponse{
		Version:         types.Version,
		ContractVersion: types.ContractVersion,
		Commit:          commit,
		GoVersion:       goruntime.Version(),
		Platform:        goruntime.GOOS + "/" + goruntime.GOARCH,
	}
}

// VersionCommand returns the version command. It never contacts the worker
// or the reviewer.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for version command", 1)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(versionInfo(commit))
		},
	}
}
