// Package sweep runs a chain over a range of operating points.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"pipelined.dev/chain"
	"pipelined.dev/chain/log"
	"pipelined.dev/chain/monitor"
	"pipelined.dev/chain/noise"
)

type (
	// Pipeline is executed once per operating point. It's implemented by
	// chain.Pipeline.
	Pipeline interface {
		RunAll(ctx context.Context, stop <-chan struct{}) error
		JoinAll() error
		ResetAll() error
		Stats() ([]chain.BlockStats, error)
	}

	// NoiseSetter is a stage which depends on the operating point. Noise
	// is set only between runs.
	NoiseSetter interface {
		SetNoise(noise.Sigma)
	}

	// Convergence tells when enough frames are checked. It's implemented
	// by monitor.BFER.
	Convergence interface {
		Done() <-chan struct{}
		Snapshot() monitor.Snapshot
		Reset()
	}

	// Interrupter is an external interrupt source. Interrupted channel is
	// closed when the current point is interrupted. IsOver reports that
	// the remaining points must be skipped. Reset is called only after the
	// interrupt stopped a point, so an interrupt received after the point
	// ended stops the next one.
	Interrupter interface {
		Interrupted() <-chan struct{}
		IsInterrupt() bool
		IsOver() bool
		Reset()
	}

	// Reporter receives results of every finished point.
	Reporter interface {
		Report(Point)
	}

	// ReporterFunc adapts a function to Reporter interface.
	ReporterFunc func(Point)
)

// Report calls f(p).
func (f ReporterFunc) Report(p Point) {
	f(p)
}

// Config defines range of operating points and parameters of noise
// calculation.
type Config struct {
	Min      float64 // dB
	Max      float64 // dB, exclusive
	Step     float64 // dB
	CodeRate float64
	BPS      int
	UPF      int
}

// Points returns Eb/N0 values of the range.
func (c Config) Points() []float64 {
	var points []float64
	for i := 0; ; i++ {
		ebn0 := c.Min + float64(i)*c.Step
		if ebn0 >= c.Max {
			return points
		}
		points = append(points, ebn0)
	}
}

// Validate checks the range and noise parameters.
func (c Config) Validate() error {
	var err error
	if c.Step <= 0 {
		err = multierr.Append(err, fmt.Errorf("step %v must be positive", c.Step))
	}
	if c.Max < c.Min {
		err = multierr.Append(err, fmt.Errorf("max %v is less than min %v", c.Max, c.Min))
	}
	if _, nerr := noise.New(c.Min, c.CodeRate, c.BPS, c.UPF); nerr != nil {
		err = multierr.Append(err, nerr)
	}
	return err
}

// Point contains results of a single operating point.
type Point struct {
	Noise       noise.Sigma
	Monitor     monitor.Snapshot
	Stats       []chain.BlockStats
	Elapsed     time.Duration
	Stopped     Reason
	Interrupted bool
}

// Throughput returns number of information bits per second.
func (p Point) Throughput() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Monitor.Bits()) / p.Elapsed.Seconds()
}

// Progress is an interim state of the running point.
type Progress struct {
	Noise   noise.Sigma
	Monitor monitor.Snapshot
	Elapsed time.Duration
}

// Throughput returns number of information bits per second.
func (p Progress) Throughput() float64 {
	return Point{Monitor: p.Monitor, Elapsed: p.Elapsed}.Throughput()
}

// Result of the sweep.
type Result struct {
	Points []Point
	// Over is true if the sweep was interrupted before all points were
	// simulated.
	Over bool
}

// Sweep executes pipeline for every operating point.
type Sweep struct {
	pipeline    Pipeline
	convergence Convergence
	conf        Config
	noisy       []NoiseSetter
	interrupter Interrupter
	reporters   []Reporter
	interval    time.Duration
	progress    func(Progress)
	log         logrus.FieldLogger
}

// Option configures a sweep.
type Option func(*Sweep)

// WithNoisy adds stages which depend on noise.
func WithNoisy(stages ...NoiseSetter) Option {
	return func(s *Sweep) {
		s.noisy = append(s.noisy, stages...)
	}
}

// WithInterrupter sets external interrupt source.
func WithInterrupter(i Interrupter) Option {
	return func(s *Sweep) {
		s.interrupter = i
	}
}

// WithReporters adds reporters of points.
func WithReporters(reporters ...Reporter) Option {
	return func(s *Sweep) {
		s.reporters = append(s.reporters, reporters...)
	}
}

// WithProgress calls fn every interval while a point is running. It's
// called from a single goroutine and never after the point is joined.
func WithProgress(interval time.Duration, fn func(Progress)) Option {
	return func(s *Sweep) {
		s.interval = interval
		s.progress = fn
	}
}

// WithLogger sets logger of the sweep.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Sweep) {
		s.log = l
	}
}

// New returns a new sweep.
func New(p Pipeline, c Convergence, conf Config, options ...Option) (*Sweep, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("sweep config: %w", err)
	}
	s := &Sweep{
		pipeline:    p,
		convergence: c,
		conf:        conf,
		interrupter: noInterrupt{},
		log:         log.GetLogger(),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// Run simulates every point of the range until all points are done or the
// interrupter is over. Stage failure stops the sweep and the result
// contains points finished before it.
func (s *Sweep) Run(ctx context.Context) (Result, error) {
	var res Result
	for _, ebn0 := range s.conf.Points() {
		p, err := s.point(ctx, ebn0)
		if err != nil {
			return res, fmt.Errorf("point Eb/N0=%.2fdB: %w", ebn0, err)
		}
		res.Points = append(res.Points, p)
		if s.interrupter.IsOver() {
			res.Over = true
			s.log.WithField("ebn0", ebn0).Info("sweep is over")
			break
		}
	}
	return res, nil
}

func (s *Sweep) point(ctx context.Context, ebn0 float64) (Point, error) {
	sigma, err := noise.New(ebn0, s.conf.CodeRate, s.conf.BPS, s.conf.UPF)
	if err != nil {
		return Point{}, err
	}
	for _, n := range s.noisy {
		n.SetNoise(sigma)
	}
	l := s.log.WithFields(logrus.Fields{"ebn0": ebn0, "sigma": sigma.Sigma})

	start := time.Now()
	var progress func()
	if s.progress != nil {
		progress = func() {
			s.progress(Progress{
				Noise:   sigma,
				Monitor: s.convergence.Snapshot(),
				Elapsed: time.Since(start),
			})
		}
	}
	w := newWatcher(s.interval, progress)
	if err := s.pipeline.RunAll(ctx, w.stop); err != nil {
		return Point{}, err
	}
	w.watch(ctx, s.convergence.Done(), s.interrupter.Interrupted())
	l.Debug("running")

	joinErr := s.pipeline.JoinAll()
	reason := w.join()
	p := Point{
		Noise:       sigma,
		Monitor:     s.convergence.Snapshot(),
		Elapsed:     time.Since(start),
		Stopped:     reason,
		Interrupted: reason == Interrupted,
	}
	stats, statsErr := s.pipeline.Stats()
	p.Stats = stats
	l.WithFields(logrus.Fields{"frames": p.Monitor.Frames, "fe": p.Monitor.FrameErrors, "stopped": reason}).Debug("joined")
	if joinErr == nil {
		for _, r := range s.reporters {
			r.Report(p)
		}
	}

	err = multierr.Combine(joinErr, statsErr, s.pipeline.ResetAll())
	s.convergence.Reset()
	if reason == Interrupted {
		s.interrupter.Reset()
	} else if s.interrupter.IsInterrupt() {
		l.Debug("interrupt is carried to the next point")
	}
	if err == nil {
		return p, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		l.WithError(err).Info("cancelled")
	}
	return p, err
}

// noInterrupt is used when sweep has no interrupter.
type noInterrupt struct{}

func (noInterrupt) Interrupted() <-chan struct{} { return nil }

func (noInterrupt) IsInterrupt() bool { return false }

func (noInterrupt) IsOver() bool { return false }

func (noInterrupt) Reset() {}
