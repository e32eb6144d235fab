package metric_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/chain"
	"pipelined.dev/chain/metric"
	"pipelined.dev/chain/monitor"
	"pipelined.dev/chain/noise"
	"pipelined.dev/chain/sweep"
)

func point(ebn0 float64, frames, fe uint64) sweep.Point {
	return sweep.Point{
		Noise:   noise.Sigma{EbN0: ebn0},
		Monitor: monitor.Snapshot{K: 10, Frames: frames, FrameErrors: fe, BitErrors: 2 * fe},
		Elapsed: time.Second,
		Stopped: sweep.Converged,
		Stats: []chain.BlockStats{
			{Block: "Encoder", Tasks: []chain.TaskStats{{Name: "encode", Calls: frames, Total: 500 * time.Millisecond}}},
		},
	}
}

func TestReporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := metric.New(reg)
	require.NoError(t, err)

	r.Report(point(0, 100, 50))
	r.Report(point(1, 200, 10))

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "simchain_bit_error_rate"))

	expected := `
# HELP simchain_frame_error_rate Frame error rate of the point.
# TYPE simchain_frame_error_rate gauge
simchain_frame_error_rate{ebn0="0.00"} 0.5
simchain_frame_error_rate{ebn0="1.00"} 0.05
# HELP simchain_frames_total Total number of checked frames.
# TYPE simchain_frames_total counter
simchain_frames_total 300
# HELP simchain_task_calls_total Number of task executions.
# TYPE simchain_task_calls_total counter
simchain_task_calls_total{block="Encoder",task="encode"} 300
# HELP simchain_throughput_bits_per_second Information bits simulated per second.
# TYPE simchain_throughput_bits_per_second gauge
simchain_throughput_bits_per_second{ebn0="0.00"} 1000
simchain_throughput_bits_per_second{ebn0="1.00"} 2000
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"simchain_frame_error_rate", "simchain_frames_total", "simchain_task_calls_total", "simchain_throughput_bits_per_second")
	assert.NoError(t, err)
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metric.New(reg)
	require.NoError(t, err)
	_, err = metric.New(reg)
	assert.Error(t, err)
}
