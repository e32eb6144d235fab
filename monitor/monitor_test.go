package monitor_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/chain"
	"pipelined.dev/chain/mock"
	"pipelined.dev/chain/monitor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// run executes limit frames through a processor which corrupts every
// n-th frame and checks them with the monitor.
func run(t *testing.T, m *monitor.BFER, k, limit, corruptEvery, threads int) {
	t.Helper()
	src := chain.MustBlock((&mock.Source{Size: k, Limit: limit, Value: 1}).Task(), 4, 1)
	proc := chain.MustBlock((&mock.Processor{Size: k, CorruptEvery: corruptEvery}).Task(), 4, 1)
	mon := chain.MustBlock(m.Task(), 4, threads)
	require.NoError(t, proc.Bind("in", src, "out"))
	require.NoError(t, mon.Bind(monitor.U, src, "out"))
	require.NoError(t, mon.Bind(monitor.V, proc, "out"))
	p, err := chain.New([]*chain.Block{src, proc, mon})
	require.NoError(t, err)
	require.NoError(t, p.RunAll(context.Background(), nil))
	require.NoError(t, p.JoinAll())
}

func TestNew(t *testing.T) {
	_, err := monitor.New(0, 1)
	assert.Error(t, err)
	_, err = monitor.New(1, 0)
	assert.Error(t, err)

	m, err := monitor.New(8, 1)
	require.NoError(t, err)
	assert.Equal(t, monitor.TaskName, m.Task().Name())
	assert.Len(t, m.Task().Inputs(), 2)
	assert.Empty(t, m.Task().Outputs())
}

func TestCounters(t *testing.T) {
	tests := []struct {
		name         string
		limit        int
		corruptEvery int
		threads      int
		maxFE        int
		expected     monitor.Snapshot
		achieved     bool
	}{
		{
			name:     "no errors",
			limit:    20,
			threads:  1,
			maxFE:    1,
			expected: monitor.Snapshot{K: 16, Frames: 20},
		},
		{
			name:         "every 2nd",
			limit:        20,
			corruptEvery: 2,
			threads:      1,
			maxFE:        5,
			expected:     monitor.Snapshot{K: 16, Frames: 20, FrameErrors: 10, BitErrors: 10},
			achieved:     true,
		},
		{
			name:         "every 4th 4 threads",
			limit:        400,
			corruptEvery: 4,
			threads:      4,
			maxFE:        1000,
			expected:     monitor.Snapshot{K: 16, Frames: 400, FrameErrors: 100, BitErrors: 100},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, err := monitor.New(16, test.maxFE)
			require.NoError(t, err)
			run(t, m, 16, test.limit, test.corruptEvery, test.threads)

			assert.Equal(t, test.expected, m.Snapshot())
			assert.Equal(t, test.achieved, m.FELimitAchieved())
			select {
			case <-m.Done():
				assert.True(t, test.achieved)
			default:
				assert.False(t, test.achieved)
			}

			m.Reset()
			assert.Equal(t, monitor.Snapshot{K: 16}, m.Snapshot())
			assert.False(t, m.FELimitAchieved())
			select {
			case <-m.Done():
				t.Fatal("done after reset")
			default:
			}
		})
	}
}

func TestRates(t *testing.T) {
	s := monitor.Snapshot{K: 10, Frames: 100, FrameErrors: 5, BitErrors: 20}
	assert.InDelta(t, 0.02, s.BER(), 1e-12)
	assert.InDelta(t, 0.05, s.FER(), 1e-12)
	assert.Equal(t, uint64(1000), s.Bits())
	assert.Zero(t, monitor.Snapshot{K: 10}.BER())
	assert.Zero(t, monitor.Snapshot{K: 10}.FER())
}

func TestLimitMonotone(t *testing.T) {
	m, err := monitor.New(4, 3)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		achieved []bool
	)
	m.AddListener(monitor.ListenerFunc(func(monitor.Unit) {
		mu.Lock()
		achieved = append(achieved, m.FELimitAchieved())
		mu.Unlock()
	}))
	run(t, m, 4, 30, 2, 1)

	// limit is reached at the 3rd failed frame and stays achieved
	require.Len(t, achieved, 30)
	for i, a := range achieved {
		assert.Equal(t, i >= 5, a, "frame %d", i)
	}
}

func TestMaxFrames(t *testing.T) {
	m, err := monitor.New(4, 100, monitor.WithMaxFrames(10))
	require.NoError(t, err)
	run(t, m, 4, 15, 0, 1)
	assert.True(t, m.FrameLimitAchieved())
	assert.False(t, m.FELimitAchieved())
	select {
	case <-m.Done():
	default:
		t.Fatal("frame limit is not signalled")
	}
}

func TestListener(t *testing.T) {
	var units []monitor.Unit
	m, err := monitor.New(4, 100, monitor.WithListener(monitor.ListenerFunc(func(u monitor.Unit) {
		units = append(units, u)
	})))
	require.NoError(t, err)
	run(t, m, 4, 4, 2, 1)

	expected := []monitor.Unit{
		{Seq: 0},
		{Seq: 1, BitErrors: 1, Failed: true},
		{Seq: 2},
		{Seq: 3, BitErrors: 1, Failed: true},
	}
	assert.Equal(t, expected, units)
}
