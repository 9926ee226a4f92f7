package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/bloom-forecast/internal/config"
	"github.com/couchcryptid/bloom-forecast/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	report := domain.BloomReport{
		ID:             "rpt-1",
		Lat:            35.67621,
		Lon:            139.65031,
		Year:           2024,
		Observation:    domain.VegetationObservation{SourceTag: domain.SourceMODIS},
		Classification: domain.BloomClassification{Level: domain.LevelPeakBloom},
		PrimarySpecies: "Cherry Blossom",
		LastUpdated:    now,
	}

	msg, err := serializeToMessage(report)
	require.NoError(t, err)

	assert.Equal(t, []byte("ndvi_35.676_139.65_2024"), msg.Key)
	assert.Contains(t, string(msg.Value), `"primary_species":"Cherry Blossom"`)
	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "report_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("rpt-1"), msg.Headers[0].Value)
	assert.Equal(t, "bloom_level", msg.Headers[1].Key)
	assert.Equal(t, []byte("PeakBloom"), msg.Headers[1].Value)
	assert.Equal(t, []byte(domain.SourceMODIS), msg.Headers[2].Value)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[3].Value)

	var decoded domain.BloomReport
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, report.ID, decoded.ID)
}

func TestWriter_PublishNothingIsNoop(t *testing.T) {
	w := NewWriter(&config.Config{KafkaBrokers: []string{"127.0.0.1:1"}, KafkaTopic: "unused"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })

	assert.NoError(t, w.Publish(context.Background()))
}
