package trace

import (
	"github.com/san-kum/acmsim/internal/foc"
	"github.com/san-kum/acmsim/internal/inverter"
	"github.com/san-kum/acmsim/internal/machine"
)

// Probe is the read-only view of a running drive that channels sample.
// Gate is nil when the inverter is ideal.
type Probe struct {
	Plant  *machine.Machine
	Ctrl   *foc.Controller
	Gate   *inverter.Gate
	Duties inverter.Duties
}

// Sample reads the given channels into dst, which must have len(chs) slots.
func (p *Probe) Sample(dst []float64, chs []Channel) {
	for i, ch := range chs {
		dst[i] = ch.Value(p)
	}
}
