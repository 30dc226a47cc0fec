package export

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Series is one named curve over a shared time axis.
type Series struct {
	Name   string
	Values []float64
}

var palette = []string{"#00ccff", "#ff4444", "#00ff88", "#ffaa00", "#ff00ff", "#cccccc"}

// WriteSVG draws each series as a strip chart stacked under the previous
// one. Non-finite samples break the line.
func WriteSVG(w io.Writer, time []float64, series []Series, width, stripHeight int) error {
	if len(time) < 2 || len(series) == 0 {
		return fmt.Errorf("export: need at least two samples and one series")
	}
	height := stripHeight * len(series)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	t0, t1 := time[0], time[len(time)-1]
	spanT := t1 - t0
	if spanT == 0 {
		spanT = 1
	}

	for k, s := range series {
		if len(s.Values) != len(time) {
			return fmt.Errorf("export: series %s has %d samples, time has %d", s.Name, len(s.Values), len(time))
		}
		lo, hi := bounds(s.Values)
		span := hi - lo
		if span == 0 {
			span = 1
		}
		base := lo - span*0.1
		scale := span * 1.2

		top := float64(k * stripHeight)
		color := palette[k%len(palette)]

		sb.WriteString(fmt.Sprintf(`<text x="4" y="%.0f" fill="%s" font-family="monospace" font-size="11">%s [%.4g, %.4g]</text>
`, top+12, color, s.Name, lo, hi))
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1" d="`, color))

		pen := false
		for i, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				pen = false
				continue
			}
			x := (time[i] - t0) / spanT * float64(width)
			y := top + float64(stripHeight) - (v-base)/scale*float64(stripHeight)
			if pen {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
			} else {
				sb.WriteString(fmt.Sprintf(" M%.1f,%.1f", x, y))
				pen = true
			}
		}
		sb.WriteString("\"/>\n")
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}
