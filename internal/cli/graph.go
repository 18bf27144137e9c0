package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/render"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
)

type graphOptions struct {
	set        int
	partition  int
	output     string
	format     string
	detailed   bool
	partitions bool
	noCache    bool
}

func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOptions

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the sweep graph of one angle set on one partition",
		Long: `Graph draws the local cell dependency graph of an angle set as DOT or
SVG. Edges removed to break cycles are dashed red; with --partitions the
neighboring partitions are drawn as well.`,
		Example: `  sweeptower graph --set 0 -o set0.svg
  sweeptower graph --set 3 --partition 1 --partitions --format dot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			pr, err := newProblem(cfg)
			if err != nil {
				return err
			}
			if opts.set < 0 || opts.set >= len(pr.groups) {
				return errors.New(errors.ErrCodeInvalidConfig, "angle set %d out of range [0,%d)", opts.set, len(pr.groups))
			}
			if opts.partition < 0 || opts.partition >= pr.grid.NumPartitions() {
				return errors.New(errors.ErrCodeInvalidConfig, "partition %d out of range [0,%d)", opts.partition, pr.grid.NumPartitions())
			}
			format, err := graphFormat(opts.format, opts.output)
			if err != nil {
				return err
			}

			store, err := openCache(ctx, cfg.Cache, opts.noCache)
			if err != nil {
				return err
			}
			defer store.Close()

			plans, err := pr.planLocal(ctx, store, loggerFromContext(ctx), []int{opts.set})
			if err != nil {
				return err
			}
			dot := render.ToDOT(plans[opts.partition][0], render.Options{Detailed: opts.detailed, Partitions: opts.partitions})

			data := []byte(dot)
			if format == formatSVG {
				if data, err = render.RenderSVG(ctx, dot); err != nil {
					return err
				}
			}
			if opts.output == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(opts.output, data, 0o644); err != nil {
				return err
			}
			printSuccess("Rendered angle set %d on partition %d", opts.set, opts.partition)
			printFile(opts.output)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.set, "set", "s", 0, "angle set index")
	f.IntVarP(&opts.partition, "partition", "p", 0, "partition index")
	f.StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	f.StringVarP(&opts.format, "format", "f", "", "dot or svg (default from the output extension, else dot)")
	f.BoolVar(&opts.detailed, "detailed", false, "label cells with level and sweep position")
	f.BoolVar(&opts.partitions, "partitions", false, "draw neighboring partitions")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the plan cache")
	registerFlagCompletions(cmd)
	return cmd
}

// graphFormat resolves --format, falling back to the output extension.
func graphFormat(format, output string) (string, error) {
	if format == "" {
		if strings.EqualFold(filepath.Ext(output), ".svg") {
			return formatSVG, nil
		}
		return formatDOT, nil
	}
	switch f := strings.ToLower(format); f {
	case formatDOT, formatSVG:
		return f, nil
	default:
		return "", errors.New(errors.ErrCodeUnsupported, "unknown graph format %q (want dot or svg)", format)
	}
}
