package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/sweeptower/pkg/cache"
	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/comm/rediscomm"
	"github.com/matzehuels/sweeptower/pkg/config"
	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/sweep"
)

// runOptions holds flags that override the configuration file.
type runOptions struct {
	iterations int
	epsilon    float64
	transport  string
	redisAddr  string
	session    string
	rank       int
	statusAddr string
	noCache    bool
}

// partitionResult is what one partition reports after its sweeps.
type partitionResult struct {
	partition int
	cells     int
	sets      int
	result    sweep.Result
	meanPsi   float64
}

func (c *CLI) runCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep the demo problem until the delayed data converges",
		Long: `Run sweeps an orthogonal grid with the manufactured relaxation kernel.

With the local transport every partition runs in its own goroutine. With
the redis transport this process hosts a single rank; start one process
per partition with the same --session and distinct --rank values.`,
		Example: `  sweeptower run
  sweeptower run -c sweep.toml --status-addr :8080
  sweeptower run --transport redis --rank 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("iterations") {
				cfg.Problem.Iterations = opts.iterations
			}
			if flags.Changed("epsilon") {
				cfg.Problem.Epsilon = opts.epsilon
			}
			if flags.Changed("transport") {
				cfg.Transport.Kind = opts.transport
			}
			if flags.Changed("redis-addr") {
				cfg.Transport.RedisAddr = opts.redisAddr
			}
			if flags.Changed("session") {
				cfg.Transport.Session = opts.session
			}
			if flags.Changed("rank") {
				cfg.Transport.Rank = opts.rank
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.runSweep(cmd.Context(), cfg, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.iterations, "iterations", "n", 0, "maximum number of sweeps")
	f.Float64Var(&opts.epsilon, "epsilon", 0, "stop when the delayed-flux change drops below this")
	f.StringVar(&opts.transport, "transport", "", "message transport: local or redis")
	f.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address for the redis transport")
	f.StringVar(&opts.session, "session", "", "Redis key namespace shared by all ranks")
	f.IntVar(&opts.rank, "rank", 0, "rank hosted by this process (redis transport)")
	f.StringVar(&opts.statusAddr, "status-addr", "", "serve progress as JSON on this address, e.g. :8080")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the plan cache")

	registerFlagCompletions(cmd)
	return cmd
}

func (c *CLI) runSweep(ctx context.Context, cfg config.Config, opts runOptions) error {
	logger := loggerFromContext(ctx)

	pr, err := newProblem(cfg)
	if err != nil {
		return err
	}
	store, err := openCache(ctx, cfg.Cache, opts.noCache)
	if err != nil {
		return err
	}
	defer store.Close()

	t := newTracker()
	pr.sweepHooks, pr.transportHooks = t, t

	if opts.statusAddr != "" {
		srv, err := startStatusServer(ctx, opts.statusAddr, statusRouter(t), logger)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "start status endpoint")
		}
		defer srv.Shutdown()
	}

	p := cfg.Problem
	printInfo("Sweeping %dx%d cells on %d partitions: %d directions in %d angle sets, %d group(s)",
		p.NX, p.NY, p.Partitions(), pr.quad.Len(), len(pr.groups), p.Groups)

	spin := newSpinnerWithContext(ctx, "Sweeping").WithDetail(t.progressLine)
	if logger.GetLevel() > log.DebugLevel {
		spin.Start()
	}
	prog := newProgress(logger)

	var results []partitionResult
	if cfg.Transport.Kind == config.TransportRedis {
		results, err = runRedis(ctx, pr, store, logger)
	} else {
		results, err = runLocal(ctx, pr, store, logger)
	}
	spin.Stop()
	if err != nil {
		return err
	}

	prog.done("Swept %d partition(s)", len(results))
	printRunSummary(os.Stdout, results, t.snapshot())
	return nil
}

// runLocal runs every partition in this process over a comm.World.
func runLocal(ctx context.Context, pr *problem, store cache.Cache, logger *log.Logger) ([]partitionResult, error) {
	n := pr.grid.NumPartitions()
	world := comm.NewWorld(n,
		comm.WithEagerLimit(pr.cfg.Sweep.EagerLimit),
		comm.WithTransportHooks(pr.transportHooks))
	results := make([]partitionResult, n)

	g, ctx := errgroup.WithContext(ctx)
	for p := range n {
		g.Go(func() error {
			res, err := runPartition(ctx, pr, p, world.Comm(p), store, partitionLogger(logger, p))
			results[p] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runRedis runs the configured rank against a shared Redis.
func runRedis(ctx context.Context, pr *problem, store cache.Cache, logger *log.Logger) ([]partitionResult, error) {
	tc := pr.cfg.Transport
	size := pr.grid.NumPartitions()

	session := tc.Session
	if session == "" {
		if size > 1 && tc.Rank != 0 {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "rank %d needs the session announced by rank 0 (--session)", tc.Rank)
		}
		session = rediscomm.NewSession()
		if size > 1 {
			printInfo("Session %s", StyleNumber.Render(session))
			printNextStep("Start the other ranks with", fmt.Sprintf("%s run --transport redis --session %s --rank <r>", appName, session))
		}
	}

	client := redis.NewClient(&redis.Options{Addr: tc.RedisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCommunication, err, "connect to redis at %s", tc.RedisAddr)
	}

	c, err := rediscomm.New(client, tc.Rank, size, rediscomm.Options{Session: session, Hooks: pr.transportHooks})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "redis transport")
	}
	logger.Debug("redis transport", "session", session, "rank", tc.Rank, "size", size)

	res, err := runPartition(ctx, pr, tc.Rank, c, store, partitionLogger(logger, tc.Rank))
	if err != nil {
		return nil, err
	}
	return []partitionResult{res}, nil
}

func runPartition(ctx context.Context, pr *problem, p int, c comm.Communicator, store cache.Cache, logger *log.Logger) (partitionResult, error) {
	run, err := pr.build(ctx, p, c, store, logger)
	if err != nil {
		return partitionResult{partition: p}, err
	}
	res, err := run.sched.Run(ctx, pr.cfg.Problem.Iterations, pr.cfg.Problem.Epsilon)
	if err != nil {
		return partitionResult{partition: p}, err
	}
	return partitionResult{
		partition: p,
		cells:     run.mesh.NumLocalCells(),
		sets:      len(run.sets),
		result:    res,
		meanPsi:   meanValue(run.kernel.Values()),
	}, nil
}

func meanValue(values map[int][]float64) float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		for _, x := range v {
			sum += x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func printRunSummary(w io.Writer, results []partitionResult, status statusSnapshot) {
	chunks := make(map[int]int, len(status.Partitions))
	for _, ps := range status.Partitions {
		chunks[ps.Partition] = ps.Chunks
	}

	rows := make([][]string, 0, len(results))
	converged := true
	for _, r := range results {
		converged = converged && r.result.Converged
		rows = append(rows, []string{
			strconv.Itoa(r.partition),
			strconv.Itoa(r.cells),
			strconv.Itoa(r.sets),
			strconv.Itoa(r.result.Sweeps),
			strconv.FormatFloat(r.result.Norm, 'e', 2, 64),
			strconv.FormatFloat(r.meanPsi, 'f', 6, 64),
			strconv.Itoa(chunks[r.partition]),
		})
	}
	fmt.Fprintln(w, StyleTitle.Render("Sweep summary"))
	printTable(w, []string{"Partition", "Cells", "Sets", "Sweeps", "Norm", "Mean psi", "Chunks in"}, rows, -1)

	printKeyValue("Messages", fmt.Sprintf("%d sent, %d bytes", status.Sends, status.BytesSent))
	if status.TransportErrors > 0 {
		printWarning("%d transport errors", status.TransportErrors)
	}
	if converged {
		printSuccess("%s", StyleSuccess.Render("Converged"))
	} else {
		printWarning("Not converged within the sweep limit")
	}
}
