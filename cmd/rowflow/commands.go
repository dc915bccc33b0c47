package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/rowflow/rowflow"
	"github.com/rowflow/rowflow/pipeline"
	"github.com/rowflow/rowflow/services/diagnostic"
	"github.com/rowflow/rowflow/services/runlog"
)

func loadDefinition(ctx *cli.Context) (*pipeline.Definition, error) {
	if ctx.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one pipeline definition, got %d arguments", ctx.NArg())
	}
	return pipeline.LoadFile(ctx.Args().First())
}

func newRunCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a pipeline to completion",
		ArgsUsage: "pipeline.yaml",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
		},
		Action: func(ctx *cli.Context) error {
			def, err := loadDefinition(ctx)
			if err != nil {
				return err
			}
			c, err := LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			s, err := NewServer(c, ctx.App.Writer, ctx.App.ErrWriter)
			if err != nil {
				return err
			}
			defer s.Close()

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			r, err := s.PipelineMaster.Run(runCtx, def)
			if r == nil {
				return err
			}
			if ctx.Bool("json") {
				enc := json.NewEncoder(ctx.App.Writer)
				enc.SetIndent("", "  ")
				if err := enc.Encode(r); err != nil {
					return err
				}
			} else {
				writeSummary(ctx.App.Writer, r)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("pipeline %q failed in step %q: %v", r.Pipeline, r.FailedStep, err), 2)
			}
			return nil
		},
	}
}

// buildPipeline wires def without running it. The pipeline master is never opened.
func buildPipeline(ctx *cli.Context, def *pipeline.Definition) (*rowflow.ExecutingPipeline, error) {
	c, err := LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	d := diagnostic.NewService(nil)
	pm := rowflow.NewPipelineMaster("validate", nil, d.NewEngineHandler())
	pm.DefaultEdgeCapacity = c.Engine.DefaultEdgeCapacity
	return pm.NewExecutingPipeline(def)
}

func newValidateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Build a pipeline and print the inferred schema of every step",
		ArgsUsage: "pipeline.yaml",
		Flags:     []cli.Flag{configFlag()},
		Action: func(ctx *cli.Context) error {
			def, err := loadDefinition(ctx)
			if err != nil {
				return err
			}
			pe, err := buildPipeline(ctx, def)
			if err != nil {
				return errors.Wrapf(err, "pipeline %q is invalid", def.Name)
			}
			w := tabwriter.NewWriter(ctx.App.Writer, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tTYPE\tSCHEMA")
			for _, step := range def.Steps {
				schema, _ := pe.Schema(step.Name)
				fmt.Fprintf(w, "%s\t%s\t%v\n", step.Name, step.Type, schema)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "pipeline %q is valid\n", def.Name)
			return nil
		},
	}
}

func newDotCmd() *cli.Command {
	return &cli.Command{
		Name:      "dot",
		Usage:     "Print the step graph of a pipeline in graphviz format",
		ArgsUsage: "pipeline.yaml",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "skip-validation",
				Usage: "Render the graph without building the pipeline",
			},
		},
		Action: func(ctx *cli.Context) error {
			def, err := loadDefinition(ctx)
			if err != nil {
				return err
			}
			var dot []byte
			if ctx.Bool("skip-validation") {
				g, err := pipeline.NewGraph(def)
				if err != nil {
					return err
				}
				dot = g.Dot()
			} else {
				pe, err := buildPipeline(ctx, def)
				if err != nil {
					return err
				}
				dot = pe.Dot(false)
			}
			_, err = fmt.Fprintln(ctx.App.Writer, string(dot))
			return err
		},
	}
}

func newHistoryCmd() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List stored runs, or show one run when a run id is given",
		ArgsUsage: "[run-id]",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "pipeline",
				Usage: "Only list the runs of this pipeline",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs listed, 0 lists all",
				Value: 20,
			},
		},
		Action: func(ctx *cli.Context) error {
			c, err := LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if !c.RunLog.Enabled {
				return errors.New("the run log is disabled, enable [runlog] in the config")
			}
			d := diagnostic.NewService(nil)
			s := runlog.NewService(c.RunLog, d.NewRunLogHandler())
			if err := s.Open(); err != nil {
				return err
			}
			defer s.Close()

			if id := ctx.Args().First(); id != "" {
				r, err := s.Get(id)
				if err != nil {
					return errors.Wrapf(err, "run %q", id)
				}
				writeSummary(ctx.App.Writer, r)
				return nil
			}
			runs, err := s.List(ctx.String("pipeline"), ctx.Int("limit"))
			if err != nil {
				return err
			}
			writeHistory(ctx.App.Writer, runs, time.Now())
			return nil
		},
	}
}

func outcome(r *rowflow.Result) string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Stopped:
		return "stopped"
	}
	return "finished"
}

func writeSummary(out io.Writer, r *rowflow.Result) {
	fmt.Fprintf(out, "run %s of %q %s in %v\n", r.RunID, r.Pipeline, outcome(r), r.Elapsed.Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(out, "error in step %q: %s\n", r.FailedStep, r.Error)
	}
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTYPE\tSTATE\tREAD\tWRITTEN\tREJECTED\tELAPSED")
	for _, s := range r.Steps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			s.Name,
			s.Type,
			s.State,
			humanize.Comma(s.RowsRead),
			humanize.Comma(s.RowsWritten),
			humanize.Comma(s.RowsRejected),
			s.Elapsed.Round(time.Millisecond),
		)
	}
	w.Flush()
}

func writeHistory(out io.Writer, runs []*rowflow.Result, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tPIPELINE\tSTARTED\tELAPSED\tOUTCOME\tROWS WRITTEN")
	for _, r := range runs {
		var written int64
		for _, s := range r.Steps {
			written += s.RowsWritten
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
			r.RunID,
			r.Pipeline,
			humanize.RelTime(r.Started, now, "ago", "from now"),
			r.Elapsed.Round(time.Millisecond),
			outcome(r),
			humanize.Comma(written),
		)
	}
	w.Flush()
}
