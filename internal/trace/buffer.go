package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/acmsim/internal/dynamo"
)

// Buffer stores one fixed-width row of channel values per recorded tick.
type Buffer struct {
	Version  int
	Channels []Channel
	Time     []float64

	rows  []float64
	index [NumChannels]int
}

func NewBuffer(chs []Channel, capacity int) *Buffer {
	b := &Buffer{
		Version:  Version,
		Channels: append([]Channel(nil), chs...),
		Time:     make([]float64, 0, capacity),
		rows:     make([]float64, 0, capacity*len(chs)),
	}
	for i := range b.index {
		b.index[i] = -1
	}
	for i, ch := range chs {
		if ch.Valid() && b.index[ch] < 0 {
			b.index[ch] = i
		}
	}
	return b
}

// Record appends one row sampled from p at time t.
func (b *Buffer) Record(t float64, p *Probe) {
	n := len(b.rows)
	for range b.Channels {
		b.rows = append(b.rows, 0)
	}
	p.Sample(b.rows[n:], b.Channels)
	b.Time = append(b.Time, t)
}

func (b *Buffer) Len() int {
	return len(b.Time)
}

func (b *Buffer) Width() int {
	return len(b.Channels)
}

// Row returns the values of tick i in channel order. The slice aliases the
// buffer.
func (b *Buffer) Row(i int) []float64 {
	w := len(b.Channels)
	return b.rows[i*w : (i+1)*w : (i+1)*w]
}

// Column copies one channel out of the buffer. ok is false when the channel
// was not recorded.
func (b *Buffer) Column(ch Channel) (values []float64, ok bool) {
	if !ch.Valid() || b.index[ch] < 0 {
		return nil, false
	}
	col := b.index[ch]
	w := len(b.Channels)
	values = make([]float64, b.Len())
	for i := range values {
		values[i] = b.rows[i*w+col]
	}
	return values, true
}

func (b *Buffer) ColumnByName(name string) ([]float64, error) {
	ch, ok := Lookup(name)
	if !ok {
		return nil, dynamo.NewConfigurationError("trace.channels", "unknown channel %q", name)
	}
	values, ok := b.Column(ch)
	if !ok {
		return nil, fmt.Errorf("channel %q was not recorded", name)
	}
	return values, nil
}

// Last returns the most recent value of ch, or 0 for an empty buffer.
func (b *Buffer) Last(ch Channel) float64 {
	if b.Len() == 0 || !ch.Valid() || b.index[ch] < 0 {
		return 0
	}
	return b.Row(b.Len() - 1)[b.index[ch]]
}

// WriteCSV writes a header of "time" and the channel names, then one line per tick.
func (b *Buffer) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(b.Channels)+1)
	header = append(header, "time")
	for _, ch := range b.Channels {
		header = append(header, ch.Name())
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	line := make([]string, len(header))
	for i := 0; i < b.Len(); i++ {
		line[0] = strconv.FormatFloat(b.Time[i], 'g', -1, 64)
		for j, v := range b.Row(i) {
			line[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
