package latency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-platform/internal/events"
)

type capturingWriter struct {
	callID string
	stats  *ByCategory
	err    error
}

func (w *capturingWriter) SaveLatencyStats(ctx context.Context, callID string, stats *ByCategory) error {
	w.callID = callID
	w.stats = stats
	return w.err
}

func recordMetric(t *testing.T, rec *events.Recorder, callID string, at time.Time, payload string) {
	t.Helper()
	typ := events.TypeMetricsCollected
	_, err := rec.Record(context.Background(), callID, typ, json.RawMessage(payload), at)
	require.NoError(t, err)
}

func TestComputeStats_EOUNearestRank(t *testing.T) {
	repo := events.NewMemoryRepo()
	rec := events.NewRecorder(repo)
	base := time.Unix(1700000000, 0).UTC()

	// Out of order on purpose.
	for i, v := range []int{300, 100, 500, 200, 400} {
		recordMetric(t, rec, "c1", base.Add(time.Duration(i)*time.Second), fmt.Sprintf(`{"metricType":"eou","endOfUtteranceDelayMs":%d}`, v))
	}

	stats, err := NewAggregator(repo, nil).ComputeStats(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	require.NotNil(t, stats.EOU)

	assert.Equal(t, 100.0, stats.EOU.Min)
	assert.Equal(t, 300.0, stats.EOU.P50)
	assert.Equal(t, 500.0, stats.EOU.P95)
	assert.Equal(t, 500.0, stats.EOU.P99)
	assert.Equal(t, 300.0, stats.EOU.Avg)
	assert.Equal(t, 500.0, stats.EOU.Max)
	assert.Equal(t, 5, stats.EOU.Count)

	assert.Nil(t, stats.LLM)
	assert.Nil(t, stats.TTS)
	assert.Nil(t, stats.Total)
}

func TestComputeStats_CategoriesAndTotalLatency(t *testing.T) {
	repo := events.NewMemoryRepo()
	rec := events.NewRecorder(repo)
	base := time.Unix(1700000000, 0).UTC()
	ctx := context.Background()

	recordMetric(t, rec, "c1", base, `{"metricType":"llm","ttftMs":250}`)
	recordMetric(t, rec, "c1", base, `{"metricType":"tts","ttfbMs":120}`)
	recordMetric(t, rec, "c1", base, `{"metricType":"tts"}`)
	recordMetric(t, rec, "c1", base, `{"metricType":"vad","idleMs":3}`)
	_, err := rec.Record(ctx, "c1", events.TypeTotalLatency, json.RawMessage(`{"totalLatencyMs":900}`), base)
	require.NoError(t, err)
	_, err = rec.Record(ctx, "c1", events.TypeTranscript, json.RawMessage(`{"items":[]}`), base)
	require.NoError(t, err)

	stats, err := NewAggregator(repo, nil).ComputeStats(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Nil(t, stats.EOU)
	require.NotNil(t, stats.LLM)
	assert.Equal(t, 1, stats.LLM.Count)
	require.NotNil(t, stats.TTS)
	assert.Equal(t, 1, stats.TTS.Count)
	require.NotNil(t, stats.Total)
	assert.Equal(t, 900.0, stats.Total.P50)
}

func TestComputeStats_NilWithoutQualifyingEvents(t *testing.T) {
	repo := events.NewMemoryRepo()
	rec := events.NewRecorder(repo)
	_, err := rec.Record(context.Background(), "c1", events.TypeRoomConnected, nil, time.Time{})
	require.NoError(t, err)

	stats, err := NewAggregator(repo, nil).ComputeStats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, stats)

	b, err := json.Marshal(map[string]any{"stats": (&ByCategory{EOU: &Stats{Count: 1}})})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "llm")
}

func TestRefresh_CachesOnlyWhenStatsExist(t *testing.T) {
	repo := events.NewMemoryRepo()
	rec := events.NewRecorder(repo)
	w := &capturingWriter{}
	agg := NewAggregator(repo, w)

	stats, err := agg.Refresh(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, stats)
	assert.Empty(t, w.callID)

	recordMetric(t, rec, "c1", time.Now(), `{"metricType":"eou","endOfUtteranceDelayMs":42}`)
	stats, err = agg.Refresh(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, "c1", w.callID)
	assert.Same(t, stats, w.stats)

	w.err = errors.New("write failed")
	_, err = agg.Refresh(context.Background(), "c1")
	assert.Error(t, err)
}

func TestPercentile_Clamps(t *testing.T) {
	s := []float64{7}
	assert.Equal(t, 7.0, Percentile(s, 0))
	assert.Equal(t, 7.0, Percentile(s, 99))
	assert.Equal(t, 0.0, Percentile(nil, 50))
	assert.Nil(t, Summarize(nil))
}
