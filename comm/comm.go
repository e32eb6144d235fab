// Package comm provides reference transforms of a communication chain:
// binary source, splitter, repetition code, BPSK modem and AWGN channel.
//
// Transforms are stateless per frame, random values are seeded with the
// frame sequence number, so every task can be executed by any number of
// threads and results don't depend on scheduling.
package comm

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"pipelined.dev/chain"
	"pipelined.dev/chain/monitor"
	"pipelined.dev/chain/noise"
)

// Source generates random information bits.
type Source struct {
	K    int
	Seed uint64
	conf chain.Config
}

// NewSource returns a source of k bits per frame.
func NewSource(k int, seed uint64, conf chain.Config) *Source {
	return &Source{K: k, Seed: seed, conf: conf}
}

// Task returns "generate" task with U_K output.
func (s *Source) Task() *chain.Task {
	return chain.MustTask("generate", func(f *chain.Frame) error {
		r := rand.New(rand.NewPCG(s.Seed, f.Seq))
		for i, u := 0, chain.Out[int32](f, 0); i < len(u); i++ {
			u[i] = int32(r.IntN(2))
		}
		return nil
	}, s.conf, chain.Output[int32]("U_K", s.K))
}

// Splitter copies its input into two outputs.
type Splitter struct {
	K    int
	conf chain.Config
}

// NewSplitter returns a splitter of k bits.
func NewSplitter(k int, conf chain.Config) *Splitter {
	return &Splitter{K: k, conf: conf}
}

// Task returns "split" task with U_K input and V_K1, V_K2 outputs.
func (s *Splitter) Task() *chain.Task {
	return chain.MustTask("split", func(f *chain.Frame) error {
		u := chain.In[int32](f, 0)
		copy(chain.Out[int32](f, 0), u)
		copy(chain.Out[int32](f, 1), u)
		return nil
	}, s.conf,
		chain.Input[int32]("U_K", s.K),
		chain.Output[int32]("V_K1", s.K),
		chain.Output[int32]("V_K2", s.K),
	)
}

// Encoder repeats k information bits into n bits codeword.
type Encoder struct {
	K, N int
	conf chain.Config
}

// NewRepetition returns encoder and decoder of repetition code. N must be
// a multiple of K.
func NewRepetition(k, n int, conf chain.Config) (*Encoder, *Decoder, error) {
	if k < 1 || n < k || n%k != 0 {
		return nil, nil, fmt.Errorf("repetition code: N=%d must be a multiple of K=%d", n, k)
	}
	return &Encoder{K: k, N: n, conf: conf}, &Decoder{K: k, N: n, conf: conf}, nil
}

// Rate returns code rate K/N.
func (e *Encoder) Rate() float64 {
	return float64(e.K) / float64(e.N)
}

// Task returns "encode" task with U_K input and X_N output.
func (e *Encoder) Task() *chain.Task {
	return chain.MustTask("encode", func(f *chain.Frame) error {
		u, x := chain.In[int32](f, 0), chain.Out[int32](f, 0)
		for i := range x {
			x[i] = u[i%e.K]
		}
		return nil
	}, e.conf, chain.Input[int32]("U_K", e.K), chain.Output[int32]("X_N", e.N))
}

// Decoder makes hard decision on the sum of repeated LLRs. It keeps the
// weakest decision of every frame until the frame is checked.
type Decoder struct {
	K, N  int
	conf  chain.Config
	units atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]float32
	margin  float64
	checked uint64
}

// Task returns "decode_siho" task with Y_N input and V_K output.
func (d *Decoder) Task() *chain.Task {
	return chain.MustTask("decode_siho", func(f *chain.Frame) error {
		y, v := chain.In[float32](f, 0), chain.Out[int32](f, 0)
		weakest := float32(math.Inf(1))
		for i := range v {
			var llr float32
			for j := i; j < d.N; j += d.K {
				llr += y[j]
			}
			if llr < 0 {
				v[i] = 1
			} else {
				v[i] = 0
			}
			weakest = min(weakest, float32(math.Abs(float64(llr))))
		}
		d.mu.Lock()
		if d.pending == nil {
			d.pending = make(map[uint64]float32)
		}
		d.pending[f.Seq] = weakest
		d.mu.Unlock()
		return nil
	}, d.conf, chain.Input[float32]("Y_N", d.N), chain.Output[int32]("V_K", d.K))
}

// OnUnitComplete releases memory of the checked frame and accumulates its
// weakest decision into the margin.
func (d *Decoder) OnUnitComplete(u monitor.Unit) {
	d.units.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	weakest, ok := d.pending[u.Seq]
	if !ok {
		return
	}
	delete(d.pending, u.Seq)
	d.margin += float64(weakest)
	d.checked++
}

// Units returns number of completed units since the decoder was created.
func (d *Decoder) Units() uint64 {
	return d.units.Load()
}

// Pending returns number of decoded frames which are not checked yet.
func (d *Decoder) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Margin returns mean absolute value of the weakest LLR over checked
// frames since the last reset.
func (d *Decoder) Margin() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.checked == 0 {
		return 0
	}
	return d.margin / float64(d.checked)
}

// Reset drops frames which were decoded but never checked and zeroes the
// margin. It must not be called while the pipeline is running.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.pending)
	d.margin, d.checked = 0, 0
}

// Modem is a BPSK modulator or demodulator.
type Modem struct {
	N     int
	conf  chain.Config
	sigma float64
}

// NewModem returns a BPSK modem of n symbols.
func NewModem(n int, conf chain.Config) *Modem {
	return &Modem{N: n, conf: conf, sigma: 1}
}

// BPS returns number of bits per symbol.
func (m *Modem) BPS() int {
	return 1
}

// UPF returns upsampling factor.
func (m *Modem) UPF() int {
	return 1
}

// SetNoise sets noise used for demodulation. It must not be called while
// the chain is running.
func (m *Modem) SetNoise(s noise.Sigma) {
	m.sigma = s.Sigma
}

// Modulate returns "modulate" task with X_N1 input and X_N2 output.
func (m *Modem) Modulate() *chain.Task {
	return chain.MustTask("modulate", func(f *chain.Frame) error {
		x, s := chain.In[int32](f, 0), chain.Out[float32](f, 0)
		for i := range s {
			s[i] = float32(1 - 2*x[i])
		}
		return nil
	}, m.conf, chain.Input[int32]("X_N1", m.N), chain.Output[float32]("X_N2", m.N))
}

// Demodulate returns "demodulate" task with Y_N1 input and Y_N2 output.
// Output contains log likelihood ratios.
func (m *Modem) Demodulate() *chain.Task {
	return chain.MustTask("demodulate", func(f *chain.Frame) error {
		y, l := chain.In[float32](f, 0), chain.Out[float32](f, 0)
		factor := float32(2 / (m.sigma * m.sigma))
		for i := range l {
			l[i] = factor * y[i]
		}
		return nil
	}, m.conf, chain.Input[float32]("Y_N1", m.N), chain.Output[float32]("Y_N2", m.N))
}

// Channel adds white gaussian noise.
type Channel struct {
	N     int
	Seed  uint64
	conf  chain.Config
	sigma float64
}

// NewChannel returns AWGN channel of n symbols.
func NewChannel(n int, seed uint64, conf chain.Config) *Channel {
	return &Channel{N: n, Seed: seed, conf: conf}
}

// SetNoise sets noise of the channel. It must not be called while the
// chain is running.
func (c *Channel) SetNoise(s noise.Sigma) {
	c.sigma = s.Sigma
}

// Task returns "add_noise" task with X_N input and Y_N output.
func (c *Channel) Task() *chain.Task {
	return chain.MustTask("add_noise", func(f *chain.Frame) error {
		r := rand.New(rand.NewPCG(c.Seed, f.Seq))
		x, y := chain.In[float32](f, 0), chain.Out[float32](f, 0)
		for i := range y {
			y[i] = x[i] + float32(c.sigma*r.NormFloat64())
		}
		return nil
	}, c.conf, chain.Input[float32]("X_N", c.N), chain.Output[float32]("Y_N", c.N))
}
