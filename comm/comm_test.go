package comm_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/chain"
	"pipelined.dev/chain/comm"
	"pipelined.dev/chain/monitor"
	"pipelined.dev/chain/noise"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// point is the result of a single simulated operating point.
type point struct {
	monitor.Snapshot
	margin  float64
	pending int
}

// simulate runs the chain until monitor is done.
func simulate(t *testing.T, c *comm.Chain, ebn0 float64) point {
	t.Helper()
	sigma, err := noise.New(ebn0, c.Encoder.Rate(), c.Modem.BPS(), c.Modem.UPF())
	require.NoError(t, err)
	c.Channel.SetNoise(sigma)
	c.Modem.SetNoise(sigma)

	stop := make(chan struct{})
	require.NoError(t, c.RunAll(context.Background(), stop))
	<-c.Monitor.Done()
	close(stop)
	require.NoError(t, c.JoinAll())
	p := point{
		Snapshot: c.Monitor.Snapshot(),
		margin:   c.Decoder.Margin(),
		pending:  c.Decoder.Pending(),
	}
	require.NoError(t, c.ResetAll())
	c.Monitor.Reset()
	assert.Zero(t, c.Decoder.Pending(), "decoder memory after reset")
	assert.Zero(t, c.Decoder.Margin(), "decoder margin after reset")
	return p
}

func TestChain(t *testing.T) {
	c, err := comm.Build(comm.Params{
		K:          32,
		N:          128,
		BufferSize: 16,
		Threads:    2,
		MaxFE:      10,
		MaxFrames:  200,
		Seed:       42,
		Task:       chain.Config{Checked: true, Stats: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.25, c.Encoder.Rate())
	assert.Len(t, c.Pipeline.Blocks(), 8)

	noisy := simulate(t, c, -10)
	assert.GreaterOrEqual(t, noisy.FrameErrors, uint64(10))
	assert.Positive(t, noisy.BER())

	clean := simulate(t, c, 20)
	assert.Zero(t, clean.BitErrors)
	assert.GreaterOrEqual(t, clean.Frames, uint64(200))

	// decoder is notified about every checked frame
	assert.Equal(t, noisy.Frames+clean.Frames, c.Decoder.Units())
	// only frames stopped between decoder and monitor stay in memory
	assert.Less(t, clean.pending, int(clean.Frames))
	assert.Greater(t, clean.margin, noisy.margin)
}

func TestChainDeterministic(t *testing.T) {
	run := func(threads int) []int {
		c, err := comm.Build(comm.Params{
			K: 16, N: 64, BufferSize: 4, Threads: threads, MaxFE: 1000, MaxFrames: 100, Seed: 7,
		})
		require.NoError(t, err)
		var (
			mu     sync.Mutex
			errors = make([]int, 100)
		)
		c.Monitor.AddListener(monitor.ListenerFunc(func(u monitor.Unit) {
			if u.Seq < 100 {
				mu.Lock()
				errors[u.Seq] = u.BitErrors
				mu.Unlock()
			}
		}))
		s := simulate(t, c, 0)
		require.GreaterOrEqual(t, s.Frames, uint64(100))
		return errors
	}
	// random values depend only on frame numbers
	assert.Equal(t, run(1), run(4))
}

func TestBuildInvalid(t *testing.T) {
	_, err := comm.Build(comm.Params{K: 32, N: 100, BufferSize: 16, Threads: 1, MaxFE: 1})
	assert.Error(t, err)
	_, err = comm.Build(comm.Params{K: 32, N: 128, BufferSize: 0, Threads: 1, MaxFE: 1})
	assert.ErrorIs(t, err, chain.ErrInvalidBlock)
}
