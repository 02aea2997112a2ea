package latency

import (
	"math"
	"sort"
	"strings"

	"voice-agent-platform/internal/events"
)

// Samples accumulates one numeric sample per event per category.
type Samples map[Category][]float64

// Collect extracts samples from metrics_collected and total_latency events.
// Events that fail to decode or carry no usable value are skipped.
func Collect(evs []events.Event) Samples {
	s := Samples{}
	for _, e := range evs {
		p, err := events.Decode(e)
		if err != nil {
			continue
		}
		switch v := p.(type) {
		case events.Metrics:
			cat, val := metricSample(v)
			s.add(cat, val)
		case events.TotalLatency:
			s.add(CategoryTotal, v.TotalLatencyMs)
		}
	}
	return s
}

func metricSample(m events.Metrics) (Category, *float64) {
	switch Category(strings.ToLower(strings.TrimSpace(m.MetricType))) {
	case CategoryEOU:
		return CategoryEOU, m.EOUDelayMs
	case CategoryLLM:
		return CategoryLLM, m.TTFTMs
	case CategoryTTS:
		return CategoryTTS, m.TTFBMs
	case CategoryTotal, "total_latency":
		return CategoryTotal, m.TotalLatencyMs
	}
	return "", nil
}

func (s Samples) add(cat Category, v *float64) {
	if cat == "" || v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return
	}
	s[cat] = append(s[cat], *v)
}

// Build turns samples into per-category stats. It returns nil when no category
// has samples.
func (s Samples) Build() *ByCategory {
	out := &ByCategory{
		EOU:   Summarize(s[CategoryEOU]),
		LLM:   Summarize(s[CategoryLLM]),
		TTS:   Summarize(s[CategoryTTS]),
		Total: Summarize(s[CategoryTotal]),
	}
	if out.EOU == nil && out.LLM == nil && out.TTS == nil && out.Total == nil {
		return nil
	}
	return out
}

// Summarize computes min, max, mean and nearest-rank percentiles.
// An empty sequence yields nil.
func Summarize(samples []float64) *Stats {
	if len(samples) == 0 {
		return nil
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return &Stats{
		Min:   sorted[0],
		P50:   Percentile(sorted, 50),
		P95:   Percentile(sorted, 95),
		P99:   Percentile(sorted, 99),
		Avg:   sum / float64(len(sorted)),
		Max:   sorted[len(sorted)-1],
		Count: len(sorted),
	}
}

// Percentile uses the nearest-rank method on an ascending slice:
// index = ceil(p/100 * n) - 1, clamped to [0, n-1]. No interpolation.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
