package noise_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/chain/noise"
)

func TestNoise(t *testing.T) {
	tests := []struct {
		name     string
		ebn0     float64
		codeRate float64
		bps      int
		upf      int
		esn0     float64
		sigma    float64
	}{
		{
			name:     "uncoded bpsk 0dB",
			ebn0:     0,
			codeRate: 1,
			bps:      1,
			upf:      1,
			esn0:     0,
			sigma:    math.Sqrt(0.5),
		},
		{
			name:     "rate 1/4 bpsk",
			ebn0:     3,
			codeRate: 0.25,
			bps:      1,
			upf:      1,
			esn0:     3 + 10*math.Log10(0.25),
			sigma:    math.Sqrt(1 / (2 * math.Pow(10, (3+10*math.Log10(0.25))/10))),
		},
		{
			name:     "10dB",
			ebn0:     10,
			codeRate: 1,
			bps:      1,
			upf:      1,
			esn0:     10,
			sigma:    math.Sqrt(0.05),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := noise.New(test.ebn0, test.codeRate, test.bps, test.upf)
			require.NoError(t, err)
			assert.Equal(t, test.ebn0, s.EbN0)
			assert.InDelta(t, test.esn0, s.EsN0, 1e-9)
			assert.InDelta(t, test.sigma, s.Sigma, 1e-9)
		})
	}
}

func TestNoiseInvalid(t *testing.T) {
	_, err := noise.New(0, 0, 1, 1)
	assert.Error(t, err)
	_, err = noise.New(0, 0.5, 0, 1)
	assert.Error(t, err)
	_, err = noise.New(0, 0.5, 1, 0)
	assert.Error(t, err)
}

func TestSigmaDecreases(t *testing.T) {
	prev := math.Inf(1)
	for ebn0 := 0.0; ebn0 < 10.01; ebn0++ {
		s, err := noise.New(ebn0, 0.25, 1, 1)
		require.NoError(t, err)
		assert.Less(t, s.Sigma, prev)
		prev = s.Sigma
	}
}
