package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/chain"
	"pipelined.dev/chain/sweep"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run", "-K", "4", "-N", "12", "--min", "0", "--max", "2", "--step", "1",
		"--max-fe", "5", "--max-frames", "500", "--threads", "2", "--markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "Eb/N0 (dB)")
	assert.Contains(t, out, " 1.00 |")
	// stats are enabled by default
	assert.Contains(t, out, "decode_siho")
}

func TestRunConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simchain.yaml")
	conf := []byte("code:\n  k: 4\n  n: 8\nsweep:\n  min: 3\n  max: 3.5\n  step: 1\nmonitor:\n  max_fe: 2\n  max_frames: 100\ntask:\n  stats: false\n")
	require.NoError(t, os.WriteFile(path, conf, 0o600))

	out, err := execute(t, "--config", path, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "3.00")
	assert.NotContains(t, out, "decode_siho")
}

func TestRunInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{
			name: "codeword not multiple",
			args: []string{"run", "-K", "4", "-N", "10"},
		},
		{
			name: "zero threads",
			args: []string{"run", "--threads", "0"},
		},
		{
			name: "missing config",
			args: []string{"--config", "missing.yaml", "run"},
		},
		{
			name: "unexpected argument",
			args: []string{"run", "extra"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := execute(t, test.args...)
			assert.Error(t, err)
		})
	}
}

func TestMergeStats(t *testing.T) {
	point := func(calls uint64, minimum, maximum time.Duration) sweep.Point {
		return sweep.Point{Stats: []chain.BlockStats{{
			Block: "Encoder",
			Tasks: []chain.TaskStats{{Name: "encode", Calls: calls, Total: time.Duration(calls) * time.Millisecond, Min: minimum, Max: maximum}},
		}}}
	}
	merged := mergeStats([]sweep.Point{
		point(10, 2*time.Millisecond, 3*time.Millisecond),
		point(0, 0, 0),
		point(5, time.Millisecond, 2*time.Millisecond),
	})
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Tasks, 1)
	task := merged[0].Tasks[0]
	assert.Equal(t, uint64(15), task.Calls)
	assert.Equal(t, 15*time.Millisecond, task.Total)
	assert.Equal(t, time.Millisecond, task.Min)
	assert.Equal(t, 3*time.Millisecond, task.Max)
	assert.Nil(t, mergeStats(nil))
}
