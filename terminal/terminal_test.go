package terminal_test

import (
	"bytes"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/chain"
	"pipelined.dev/chain/log"
	"pipelined.dev/chain/monitor"
	"pipelined.dev/chain/noise"
	"pipelined.dev/chain/sweep"
	"pipelined.dev/chain/terminal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func closed(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

func TestInterrupts(t *testing.T) {
	term := terminal.New(&bytes.Buffer{}, terminal.WithLogger(log.Silent()))
	assert.False(t, term.IsInterrupt())
	assert.False(t, closed(term.Interrupted()))

	term.Signal()
	assert.True(t, term.IsInterrupt())
	assert.True(t, closed(term.Interrupted()))
	assert.False(t, term.IsOver())

	term.Reset()
	assert.False(t, term.IsInterrupt())
	assert.False(t, closed(term.Interrupted()))
	assert.False(t, term.IsOver())

	// second interrupt ends the sweep even after reset
	term.Signal()
	assert.True(t, term.IsInterrupt())
	assert.True(t, term.IsOver())
	term.Reset()
	assert.True(t, term.IsOver())
}

func TestDoubleSignal(t *testing.T) {
	term := terminal.New(&bytes.Buffer{}, terminal.WithLogger(log.Silent()))
	term.Signal()
	term.Signal()
	assert.True(t, term.IsInterrupt())
	assert.True(t, term.IsOver())
}

func TestListen(t *testing.T) {
	term := terminal.New(&bytes.Buffer{}, terminal.WithLogger(log.Silent()))
	stop := term.Listen()
	stop()
	assert.False(t, term.IsInterrupt())
}

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		markdown bool
		contains []string
	}{
		{
			name:     "ascii",
			contains: []string{"Eb/N0 (dB)", "1.00", "-5.02", "1.00e-01", "3.125", "00h00'02 *"},
		},
		{
			name:     "markdown",
			markdown: true,
			contains: []string{"Es/N0 (dB)", "-5.02", "|"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			options := []terminal.Option{terminal.WithLogger(log.Silent())}
			if test.markdown {
				options = append(options, terminal.WithMarkdown())
			}
			term := terminal.New(&out, options...)
			sigma, err := noise.New(1, 0.25, 1, 1)
			require.NoError(t, err)
			term.Report(sweep.Point{
				Noise:       sigma,
				Monitor:     monitor.Snapshot{K: 10, Frames: 625000, FrameErrors: 62500, BitErrors: 625000},
				Elapsed:     2 * time.Second,
				Interrupted: true,
			})
			require.NoError(t, term.WritePoints())
			for _, s := range test.contains {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestWriteStats(t *testing.T) {
	var out bytes.Buffer
	term := terminal.New(&out, terminal.WithLogger(log.Silent()))
	err := term.WriteStats([]chain.BlockStats{
		{Block: "Encoder", Tasks: []chain.TaskStats{{Name: "encode", Calls: 10, Total: 3 * time.Millisecond, Min: time.Microsecond, Max: time.Millisecond}}},
		{Block: "Decoder", Tasks: []chain.TaskStats{{Name: "decode_siho", Calls: 10, Total: time.Millisecond}}},
	})
	require.NoError(t, err)
	for _, s := range []string{"Encoder", "encode", "decode_siho", "75.00", "25.00", "300µs", "Total"} {
		assert.Contains(t, out.String(), s)
	}
}

func TestProgress(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	var out bytes.Buffer
	term := terminal.New(&out, terminal.WithLogger(logger))
	term.Progress(sweep.Progress{
		Noise:   noise.Sigma{EbN0: 2},
		Monitor: monitor.Snapshot{K: 10, Frames: 100, FrameErrors: 5, BitErrors: 20},
		Elapsed: 61 * time.Second,
	})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "progress", entry.Message)
	assert.Equal(t, 2.0, entry.Data["ebn0"])
	assert.Equal(t, uint64(100), entry.Data["frames"])
	assert.Equal(t, 0.05, entry.Data["fer"])
	assert.Equal(t, "00h01'01", entry.Data["elapsed"])
	// progress is not added to the table of points
	require.NoError(t, term.WritePoints())
	assert.NotContains(t, out.String(), "2.00")
}
