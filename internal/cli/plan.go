package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/sweeptower/pkg/mesh"
	"github.com/matzehuels/sweeptower/pkg/spds"
)

func (c *CLI) planCommand() *cobra.Command {
	var (
		partition int
		noCache   bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show sweep-plan statistics for every angle set",
		Long: `Plan builds the sweep plan of every angle set on every partition and
prints one row per (set, partition): cell count, cyclic edges removed,
wavefront levels and width, and the partitions it waits on or feeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			logger := loggerFromContext(ctx)

			pr, err := newProblem(cfg)
			if err != nil {
				return err
			}
			store, err := openCache(ctx, cfg.Cache, noCache)
			if err != nil {
				return err
			}
			defer store.Close()

			prog := newProgress(logger)
			plans, err := pr.planLocal(ctx, store, logger, pr.allSets())
			if err != nil {
				return err
			}
			prog.done("Planned %d angle sets on %d partitions", len(pr.groups), len(plans))

			p := cfg.Problem
			printKeyValue("Grid", fmt.Sprintf("%dx%d cells, %dx%d partitions", p.NX, p.NY, p.PX, p.PY))
			printKeyValue("Quadrature", pr.quad.String())
			printKeyValue("Angle sets", strconv.Itoa(len(pr.groups)))
			writePlanTable(os.Stdout, plans, partition)
			return nil
		},
	}

	cmd.Flags().IntVarP(&partition, "partition", "p", -1, "only show this partition")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the plan cache")
	return cmd
}

var planHeaders = []string{"Set", "Omega", "Part", "Cells", "Cyclic", "Levels", "Width", "Deps", "Succs", "Delayed"}

const planCyclicColumn = 4

// planRows flattens plans (indexed by partition, then set) into table
// rows ordered by set. A negative partition keeps every partition.
func planRows(plans [][]*spds.SPDS, partition int) [][]string {
	var rows [][]string
	if len(plans) == 0 {
		return rows
	}
	for set := range plans[0] {
		for p, sets := range plans {
			if partition >= 0 && p != partition {
				continue
			}
			s := sets[set]
			rows = append(rows, []string{
				strconv.Itoa(set),
				formatOmega(s.Omega()),
				strconv.Itoa(p),
				strconv.Itoa(len(s.Order())),
				strconv.Itoa(len(s.LocalCyclicDependencies())),
				strconv.Itoa(levelCount(s.Levels())),
				strconv.Itoa(s.WavefrontWidth()),
				formatPartitions(s.Dependencies()),
				formatPartitions(s.Successors()),
				formatPartitions(s.DelayedDependencies()),
			})
		}
	}
	return rows
}

func levelCount(levels []int) int {
	if len(levels) == 0 {
		return 0
	}
	return slices.Max(levels) + 1
}

func formatOmega(v mesh.Vector3) string {
	return fmt.Sprintf("(%+.2f,%+.2f)", v.X, v.Y)
}

func formatPartitions(parts []int) string {
	if len(parts) == 0 {
		return "-"
	}
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}

func writePlanTable(w io.Writer, plans [][]*spds.SPDS, partition int) {
	printTable(w, planHeaders, planRows(plans, partition), planCyclicColumn)
}
