// Package noise converts signal-to-noise ratios into channel noise.
package noise

import (
	"fmt"
	"math"
)

// Sigma is a noise configuration of a single operating point.
type Sigma struct {
	EbN0  float64 // dB
	EsN0  float64 // dB
	Sigma float64
}

// EbN0ToEsN0 converts energy per information bit to energy per symbol for
// a code rate and number of bits per symbol.
func EbN0ToEsN0(ebn0, codeRate float64, bps int) float64 {
	return ebn0 + 10*math.Log10(codeRate*float64(bps))
}

// EsN0ToSigma returns standard deviation of gaussian noise for energy per
// symbol and upsampling factor.
func EsN0ToSigma(esn0 float64, upf int) float64 {
	return math.Sqrt(float64(upf) / (2 * math.Pow(10, esn0/10)))
}

// New computes noise of the operating point.
func New(ebn0, codeRate float64, bps, upf int) (Sigma, error) {
	if codeRate <= 0 || codeRate > 1 {
		return Sigma{}, fmt.Errorf("code rate %v must be in (0, 1]", codeRate)
	}
	if bps < 1 || upf < 1 {
		return Sigma{}, fmt.Errorf("bits per symbol %d and upsampling factor %d must be positive", bps, upf)
	}
	esn0 := EbN0ToEsN0(ebn0, codeRate, bps)
	return Sigma{
		EbN0:  ebn0,
		EsN0:  esn0,
		Sigma: EsN0ToSigma(esn0, upf),
	}, nil
}

func (s Sigma) String() string {
	return fmt.Sprintf("Eb/N0=%.2fdB Es/N0=%.2fdB sigma=%.4f", s.EbN0, s.EsN0, s.Sigma)
}
