package latency

// Stats summarises one latency category for a call. Values are milliseconds.
type Stats struct {
	Min   float64 `json:"min"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// ByCategory holds per-category stats. A category with no samples is nil and
// omitted from JSON; it is never reported as zero.
type ByCategory struct {
	EOU   *Stats `json:"eou,omitempty"`
	LLM   *Stats `json:"llm,omitempty"`
	TTS   *Stats `json:"tts,omitempty"`
	Total *Stats `json:"total,omitempty"`
}

type Category string

const (
	CategoryEOU   Category = "eou"
	CategoryLLM   Category = "llm"
	CategoryTTS   Category = "tts"
	CategoryTotal Category = "total"
)
