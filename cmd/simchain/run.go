package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/chain"
	"pipelined.dev/chain/comm"
	"pipelined.dev/chain/config"
	"pipelined.dev/chain/metric"
	"pipelined.dev/chain/sweep"
	"pipelined.dev/chain/terminal"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(root *rootOptions) *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate the chain over the range of Eb/N0",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := root.config()
			if err != nil {
				return err
			}
			if err := override(cmd.Flags(), &c); err != nil {
				return err
			}
			return simulate(cmd.Context(), c, root, markdown)
		},
	}
	d := config.Default()
	fs := cmd.Flags()
	fs.Int("buffer", d.Chain.BufferSize, "capacity of block channels")
	fs.IntP("threads", "t", d.Chain.Threads, "number of workers per block")
	fs.IntP("info-bits", "K", d.Code.K, "number of information bits")
	fs.IntP("codeword", "N", d.Code.N, "codeword size")
	fs.Float64P("min", "m", d.Sweep.Min, "first Eb/N0 value in dB")
	fs.Float64P("max", "M", d.Sweep.Max, "last Eb/N0 value in dB, excluded")
	fs.Float64P("step", "s", d.Sweep.Step, "Eb/N0 step in dB")
	fs.Duration("progress", d.Sweep.Progress, "period of progress reports, 0 disables them")
	fs.IntP("max-fe", "e", d.Monitor.MaxFE, "number of frame errors to reach per point")
	fs.Uint64("max-frames", d.Monitor.MaxFrames, "maximum number of frames per point, 0 is unlimited")
	fs.Uint64("seed", d.Seed, "seed of the source and the channel")
	fs.Bool("checked", d.Task.Checked, "validate sequence numbers of frames")
	fs.Bool("stats", d.Task.Stats, "collect and print task statistics")
	fs.Bool("task-debug", d.Task.Debug, "log data of every executed task")
	fs.String("metrics-addr", d.Metrics.Addr, "address to expose prometheus metrics on")
	fs.BoolVar(&markdown, "markdown", false, "render tables in markdown")
	return cmd
}

// override applies explicitly set flags on top of loaded configuration.
func override(fs *pflag.FlagSet, c *config.Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "buffer":
			c.Chain.BufferSize, err = fs.GetInt(f.Name)
		case "threads":
			c.Chain.Threads, err = fs.GetInt(f.Name)
		case "info-bits":
			c.Code.K, err = fs.GetInt(f.Name)
		case "codeword":
			c.Code.N, err = fs.GetInt(f.Name)
		case "min":
			c.Sweep.Min, err = fs.GetFloat64(f.Name)
		case "max":
			c.Sweep.Max, err = fs.GetFloat64(f.Name)
		case "step":
			c.Sweep.Step, err = fs.GetFloat64(f.Name)
		case "progress":
			c.Sweep.Progress, err = fs.GetDuration(f.Name)
		case "max-fe":
			c.Monitor.MaxFE, err = fs.GetInt(f.Name)
		case "max-frames":
			c.Monitor.MaxFrames, err = fs.GetUint64(f.Name)
		case "seed":
			c.Seed, err = fs.GetUint64(f.Name)
		case "checked":
			c.Task.Checked, err = fs.GetBool(f.Name)
		case "stats":
			c.Task.Stats, err = fs.GetBool(f.Name)
		case "task-debug":
			c.Task.Debug, err = fs.GetBool(f.Name)
		case "metrics-addr":
			c.Metrics.Addr, err = fs.GetString(f.Name)
		}
	})
	if err != nil {
		return err
	}
	return c.Validate()
}

func simulate(ctx context.Context, c config.Config, root *rootOptions, markdown bool) error {
	l := root.logger()
	ch, err := comm.Build(comm.Params{
		K:          c.Code.K,
		N:          c.Code.N,
		BufferSize: c.Chain.BufferSize,
		Threads:    c.Chain.Threads,
		MaxFE:      c.Monitor.MaxFE,
		MaxFrames:  c.Monitor.MaxFrames,
		Seed:       c.Seed,
		Task:       c.TaskConfig(),
	}, chain.WithLogger(l), chain.WithName("simchain"))
	if err != nil {
		return err
	}

	termOpts := []terminal.Option{terminal.WithLogger(l)}
	if markdown {
		termOpts = append(termOpts, terminal.WithMarkdown())
	}
	term := terminal.New(root.out, termOpts...)
	reg := prometheus.NewRegistry()
	metrics, err := metric.New(reg)
	if err != nil {
		return err
	}

	s, err := sweep.New(ch, ch.Monitor, sweep.Config{
		Min:      c.Sweep.Min,
		Max:      c.Sweep.Max,
		Step:     c.Sweep.Step,
		CodeRate: ch.Encoder.Rate(),
		BPS:      ch.Modem.BPS(),
		UPF:      ch.Modem.UPF(),
	},
		sweep.WithNoisy(ch.Channel, ch.Modem),
		sweep.WithInterrupter(term),
		sweep.WithReporters(term, metrics),
		sweep.WithProgress(c.Sweep.Progress, term.Progress),
		sweep.WithLogger(l),
	)
	if err != nil {
		return err
	}

	stopListen := term.Listen()
	defer stopListen()
	l.WithFields(logrus.Fields{
		"K":       c.Code.K,
		"N":       c.Code.N,
		"threads": c.Chain.Threads,
		"buffer":  c.Chain.BufferSize,
		"max_fe":  c.Monitor.MaxFE,
	}).Info("simulation started")

	var res sweep.Result
	g, ctx := errgroup.WithContext(ctx)
	swept := make(chan struct{})
	g.Go(func() error {
		defer close(swept)
		var err error
		res, err = s.Run(ctx)
		return err
	})
	if c.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              c.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: shutdownTimeout,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-swept:
			case <-ctx.Done():
			}
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if res.Over {
		l.Warn("simulation interrupted")
	}

	if err := term.WritePoints(); err != nil {
		return err
	}
	if !c.Task.Stats {
		return nil
	}
	return term.WriteStats(mergeStats(res.Points))
}

// mergeStats sums statistics of blocks over all points.
func mergeStats(points []sweep.Point) []chain.BlockStats {
	if len(points) == 0 {
		return nil
	}
	merged := make([]chain.BlockStats, len(points[0].Stats))
	for i, b := range points[0].Stats {
		merged[i] = chain.BlockStats{ID: b.ID, Block: b.Block, Tasks: append([]chain.TaskStats(nil), b.Tasks...)}
	}
	for _, p := range points[1:] {
		for i, b := range p.Stats {
			for j, t := range b.Tasks {
				m := &merged[i].Tasks[j]
				m.Calls += t.Calls
				m.Total += t.Total
				if t.Calls > 0 && (m.Min == 0 || t.Min < m.Min) {
					m.Min = t.Min
				}
				if t.Max > m.Max {
					m.Max = t.Max
				}
			}
		}
	}
	return merged
}
