package comm

import (
	"fmt"

	"pipelined.dev/chain"
	"pipelined.dev/chain/monitor"
)

// Params of the communication chain.
type Params struct {
	K          int
	N          int
	BufferSize int
	Threads    int
	MaxFE      int
	MaxFrames  uint64
	Seed       uint64
	Task       chain.Config
}

// Chain is an assembled communication chain.
type Chain struct {
	*chain.Pipeline
	Monitor *monitor.BFER
	Encoder *Encoder
	Decoder *Decoder
	Modem   *Modem
	Channel *Channel
}

// Build creates blocks of the chain and binds them:
//
//	source -> splitter -> encoder -> modulator -> channel -> demodulator -> decoder -> monitor.V
//	              \-----------------------------------------------------------------> monitor.U
func Build(p Params, options ...chain.Option) (*Chain, error) {
	enc, dec, err := NewRepetition(p.K, p.N, p.Task)
	if err != nil {
		return nil, err
	}
	var monOpts []monitor.Option
	if p.MaxFrames > 0 {
		monOpts = append(monOpts, monitor.WithMaxFrames(p.MaxFrames))
	}
	mon, err := monitor.New(p.K, p.MaxFE, monOpts...)
	if err != nil {
		return nil, err
	}
	mon.AddListener(dec)
	modem := NewModem(p.N, p.Task)
	channel := NewChannel(p.N, p.Seed+1, p.Task)

	tasks := []struct {
		task *chain.Task
		name string
	}{
		{NewSource(p.K, p.Seed, p.Task).Task(), "Source"},
		{enc.Task(), "Encoder"},
		{modem.Modulate(), "Modulator"},
		{channel.Task(), "Channel"},
		{modem.Demodulate(), "Demodulator"},
		{dec.Task(), "Decoder"},
		{NewSplitter(p.K, p.Task).Task(), "Splitter"},
		{mon.Task(), "Monitor"},
	}
	blocks := make([]*chain.Block, 0, len(tasks))
	for _, t := range tasks {
		b, err := chain.NewBlock(t.task, p.BufferSize, p.Threads, chain.Named(t.name))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	source, encoder, modulator, channelBlock, demodulator, decoder, splitter, monitorBlock :=
		blocks[0], blocks[1], blocks[2], blocks[3], blocks[4], blocks[5], blocks[6], blocks[7]

	bindings := []struct {
		consumer *chain.Block
		input    string
		producer *chain.Block
		output   string
	}{
		{splitter, "U_K", source, "U_K"},
		{encoder, "U_K", splitter, "V_K1"},
		{modulator, "X_N1", encoder, "X_N"},
		{channelBlock, "X_N", modulator, "X_N2"},
		{demodulator, "Y_N1", channelBlock, "Y_N"},
		{decoder, "Y_N", demodulator, "Y_N2"},
		{monitorBlock, monitor.U, splitter, "V_K2"},
		{monitorBlock, monitor.V, decoder, "V_K"},
	}
	for _, b := range bindings {
		if err := b.consumer.Bind(b.input, b.producer, b.output); err != nil {
			return nil, fmt.Errorf("build chain: %w", err)
		}
	}

	p2, err := chain.New(blocks, options...)
	if err != nil {
		return nil, err
	}
	return &Chain{
		Pipeline: p2,
		Monitor:  mon,
		Encoder:  enc,
		Decoder:  dec,
		Modem:    modem,
		Channel:  channel,
	}, nil
}

// ResetAll resets the pipeline and drops decoder memory of frames which
// were stopped before the monitor.
func (c *Chain) ResetAll() error {
	if err := c.Pipeline.ResetAll(); err != nil {
		return err
	}
	c.Decoder.Reset()
	return nil
}
