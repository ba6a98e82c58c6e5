package traffic

import (
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	g, err := NewGenerator(cfg)
	require.NoError(t, err)

	records := g.Generate()
	require.Len(t, records, cfg.NumNormal+cfg.NumAnomalous+cfg.NumDoS)
	require.NoError(t, Validate(records))

	assert.True(t, sort.SliceIsSorted(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	}))

	var malicious int
	dosHosts := make(map[string]bool)
	for _, r := range records {
		assert.GreaterOrEqual(t, r.Timestamp, cfg.StartTime)
		assert.Less(t, r.Timestamp, cfg.StartTime+cfg.Duration)

		octet, err := strconv.Atoi(strings.TrimPrefix(r.SourceID, "192.168.1."))
		require.NoError(t, err)

		switch {
		case octet < normalHostHigh:
			assert.Equal(t, Benign, r.Label)
			assert.GreaterOrEqual(t, r.PacketSize, 50)
			assert.Less(t, r.PacketSize, 1500)
		case octet < anomalousHostHigh:
			assert.Equal(t, Malicious, r.Label)
			assert.GreaterOrEqual(t, r.PacketSize, 1000)
			assert.Less(t, r.PacketSize, 1500)
		default:
			assert.Equal(t, Malicious, r.Label)
			assert.GreaterOrEqual(t, r.PacketSize, 1500)
			assert.Less(t, r.PacketSize, 3000)
			dosHosts[r.SourceID] = true
		}
		if r.Label == Malicious {
			malicious++
		}
	}

	assert.Equal(t, cfg.NumAnomalous+cfg.NumDoS, malicious)
	assert.LessOrEqual(t, len(dosHosts), cfg.NumDoSSources)
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.Seed = 7

	a, err := NewGenerator(cfg)
	require.NoError(t, err)
	b, err := NewGenerator(cfg)
	require.NoError(t, err)

	assert.Equal(t, a.Generate(), b.Generate())
}

func TestNewGeneratorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *GeneratorConfig)
	}{
		{name: "negative normal", mutate: func(c *GeneratorConfig) { c.NumNormal = -1 }},
		{name: "no dos sources", mutate: func(c *GeneratorConfig) { c.NumDoSSources = 0 }},
		{name: "too many dos sources", mutate: func(c *GeneratorConfig) { c.NumDoSSources = 50 }},
		{name: "negative duration", mutate: func(c *GeneratorConfig) { c.Duration = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGeneratorConfig()
			tt.mutate(&cfg)
			_, err := NewGenerator(cfg)
			assert.ErrorIs(t, err, ErrInvalidGenerator)
		})
	}
}

func TestGenerateWithoutDoS(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.NumDoS = 0
	cfg.NumDoSSources = 0

	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.Len(t, g.Generate(), cfg.NumNormal+cfg.NumAnomalous)
}
