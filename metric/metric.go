// Package metric exports results of simulated points as prometheus
// metrics.
package metric

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"pipelined.dev/chain/sweep"
)

const namespace = "simchain"

const (
	ebn0Label  = "ebn0"
	blockLabel = "block"
	taskLabel  = "task"
)

// Reporter collects metrics of every reported point.
type Reporter struct {
	frames      prometheus.Counter
	frameErrors prometheus.Counter
	bitErrors   prometheus.Counter
	points      *prometheus.CounterVec
	ber         *prometheus.GaugeVec
	fer         *prometheus.GaugeVec
	throughput  *prometheus.GaugeVec
	elapsed     prometheus.Histogram
	taskCalls   *prometheus.CounterVec
	taskSeconds *prometheus.CounterVec
}

// New creates collectors and registers them.
func New(reg prometheus.Registerer) (*Reporter, error) {
	r := &Reporter{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of checked frames.",
		}),
		frameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Total number of erroneous frames.",
		}),
		bitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bit_errors_total",
			Help:      "Total number of erroneous bits.",
		}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_total",
			Help:      "Number of simulated points by stop reason.",
		}, []string{"stopped"}),
		ber: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bit_error_rate",
			Help:      "Bit error rate of the point.",
		}, []string{ebn0Label}),
		fer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_error_rate",
			Help:      "Frame error rate of the point.",
		}, []string{ebn0Label}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_bits_per_second",
			Help:      "Information bits simulated per second.",
		}, []string{ebn0Label}),
		elapsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "point_duration_seconds",
			Help:      "Duration of point simulation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		taskCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_calls_total",
			Help:      "Number of task executions.",
		}, []string{blockLabel, taskLabel}),
		taskSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_seconds_total",
			Help:      "Time spent in task executions.",
		}, []string{blockLabel, taskLabel}),
	}
	for _, c := range []prometheus.Collector{
		r.frames, r.frameErrors, r.bitErrors, r.points, r.ber, r.fer,
		r.throughput, r.elapsed, r.taskCalls, r.taskSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Report implements sweep.Reporter.
func (r *Reporter) Report(p sweep.Point) {
	ebn0 := strconv.FormatFloat(p.Noise.EbN0, 'f', 2, 64)
	r.frames.Add(float64(p.Monitor.Frames))
	r.frameErrors.Add(float64(p.Monitor.FrameErrors))
	r.bitErrors.Add(float64(p.Monitor.BitErrors))
	r.points.WithLabelValues(string(p.Stopped)).Inc()
	r.ber.WithLabelValues(ebn0).Set(p.Monitor.BER())
	r.fer.WithLabelValues(ebn0).Set(p.Monitor.FER())
	r.throughput.WithLabelValues(ebn0).Set(p.Throughput())
	r.elapsed.Observe(p.Elapsed.Seconds())
	for _, b := range p.Stats {
		for _, t := range b.Tasks {
			r.taskCalls.WithLabelValues(b.Block, t.Name).Add(float64(t.Calls))
			r.taskSeconds.WithLabelValues(b.Block, t.Name).Add(t.Total.Seconds())
		}
	}
}
