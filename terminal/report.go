package terminal

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"

	"pipelined.dev/chain"
	"pipelined.dev/chain/sweep"
)

var legend = table.Row{"Es/N0 (dB)", "Eb/N0 (dB)", "FRA", "BE", "FE", "BER", "FER", "SIM_THR (Mb/s)", "ET/RT (hhmmss)"}

var statsLegend = table.Row{"Block", "Task", "Calls", "Total", "Avg", "Min", "Max", "Time (%)"}

// Report adds the point to the table of results and logs a progress line.
func (t *Terminal) Report(p sweep.Point) {
	elapsed := hhmmss(p.Elapsed)
	if p.Interrupted {
		elapsed += " *"
	}
	t.mu.Lock()
	t.points.AppendRow(table.Row{
		fmt.Sprintf("%.2f", p.Noise.EsN0),
		fmt.Sprintf("%.2f", p.Noise.EbN0),
		p.Monitor.Frames,
		p.Monitor.BitErrors,
		p.Monitor.FrameErrors,
		fmt.Sprintf("%.2e", p.Monitor.BER()),
		fmt.Sprintf("%.2e", p.Monitor.FER()),
		fmt.Sprintf("%.3f", p.Throughput()/1e6),
		elapsed,
	})
	t.mu.Unlock()
	t.log.WithFields(logrus.Fields{
		"ebn0":    p.Noise.EbN0,
		"frames":  p.Monitor.Frames,
		"fe":      p.Monitor.FrameErrors,
		"ber":     p.Monitor.BER(),
		"fer":     p.Monitor.FER(),
		"stopped": p.Stopped,
	}).Info("point done")
}

// Progress logs interim results of the running point.
func (t *Terminal) Progress(p sweep.Progress) {
	t.log.WithFields(logrus.Fields{
		"ebn0":    p.Noise.EbN0,
		"frames":  p.Monitor.Frames,
		"fe":      p.Monitor.FrameErrors,
		"ber":     p.Monitor.BER(),
		"fer":     p.Monitor.FER(),
		"mbps":    fmt.Sprintf("%.3f", p.Throughput()/1e6),
		"elapsed": hhmmss(p.Elapsed),
	}).Info("progress")
}

// WritePoints renders the table of reported points.
func (t *Terminal) WritePoints() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points.SetColumnConfigs(rightAligned(len(legend)))
	_, err := io.WriteString(t.out, t.render(t.points)+"\n")
	return err
}

// WriteStats renders statistics of block tasks. Time share is relative to
// the sum of all tasks durations.
func (t *Terminal) WriteStats(stats []chain.BlockStats) error {
	var total time.Duration
	for _, b := range stats {
		for _, s := range b.Tasks {
			total += s.Total
		}
	}
	w := t.newTable()
	w.AppendHeader(statsLegend)
	for _, b := range stats {
		for _, s := range b.Tasks {
			var share float64
			if total > 0 {
				share = 100 * float64(s.Total) / float64(total)
			}
			w.AppendRow(table.Row{b.Block, s.Name, s.Calls, s.Total, s.Avg(), s.Min, s.Max, fmt.Sprintf("%.2f", share)})
		}
	}
	w.AppendFooter(table.Row{"", "Total", "", total, "", "", "", "100.00"})
	cols := rightAligned(len(statsLegend))
	cols[0].Align, cols[1].Align = text.AlignLeft, text.AlignLeft
	w.SetColumnConfigs(cols)
	_, err := io.WriteString(t.out, t.render(w)+"\n")
	return err
}

func rightAligned(n int) []table.ColumnConfig {
	cols := make([]table.ColumnConfig, n)
	for i := range cols {
		cols[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignRight}
	}
	return cols
}

// hhmmss formats duration as 00h00'00.
func hhmmss(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02dh%02d'%02d", int(h), int(m), int(d/time.Second))
}
