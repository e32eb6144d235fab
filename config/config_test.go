package config_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"pipelined.dev/chain"
	"pipelined.dev/chain/config"
)

func TestLoad(t *testing.T) {
	c, err := config.Load("testdata/simchain.yaml")
	require.NoError(t, err)

	expected := config.Config{
		Chain:   config.Chain{BufferSize: 4, Threads: 2},
		Code:    config.Code{K: 64, N: 256},
		Sweep:   config.Sweep{Min: 1, Max: 5.01, Step: 0.5, Progress: 2 * time.Second},
		Monitor: config.Monitor{MaxFE: 50, MaxFrames: 100000},
		// stats and debug limit are kept from defaults
		Task:    config.Task{Checked: true, Stats: true, DebugLimit: 16},
		Metrics: config.Metrics{Addr: ":2112"},
		Seed:    7,
	}
	if diff := cmp.Diff(expected, c); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, chain.Config{Checked: true, Stats: true, DebugLimit: 16}, c.TaskConfig())
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errors int
	}{
		{
			name:  "empty",
			input: "",
		},
		{
			name:  "partial",
			input: "chain:\n  threads: 4\n",
		},
		{
			name:   "unknown field",
			input:  "chain:\n  workers: 4\n",
			errors: 1,
		},
		{
			name:   "invalid values",
			input:  "chain:\n  buffer_size: 0\n  threads: 0\ncode:\n  k: 32\n  n: 100\n",
			errors: 3,
		},
		{
			name:  "progress duration",
			input: "sweep:\n  progress: 250ms\n",
		},
		{
			name:   "negative progress",
			input:  "sweep:\n  progress: -1s\n",
			errors: 1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := config.Decode(strings.NewReader(test.input))
			if test.errors == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Len(t, multierr.Errors(err), test.errors)
		})
	}
}

func TestDefault(t *testing.T) {
	c := config.Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 16, c.Chain.BufferSize)
	assert.Equal(t, 1, c.Chain.Threads)
	assert.Equal(t, 10.01, c.Sweep.Max)

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))
	decoded, err := config.Decode(&buf)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(c, decoded))
}
