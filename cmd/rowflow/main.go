// Command rowflow runs and inspects rowflow pipelines.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

// These variables are populated via the Go linker.
var (
	version string
	commit  string
)

func init() {
	if version == "" {
		version = "unknown"
	}
	if commit == "" {
		commit = "unknown"
	}
}

func main() {
	if err := NewApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewApp returns the rowflow command line application writing to stdout and stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "rowflow",
		Usage:     "Run row oriented ETL pipelines",
		UsageText: "rowflow [command] [flags] pipeline.yaml",
		Version:   fmt.Sprintf("%s (%s)", version, commit),
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			newRunCmd(),
			newValidateCmd(),
			newDotCmd(),
			newHistoryCmd(),
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a TOML configuration file",
		EnvVars: []string{"ROWFLOW_CONFIG_PATH"},
	}
}
