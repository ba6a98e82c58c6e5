package io

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/trafficeval/pkg/io/pcap"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

func generate(t *testing.T) []traffic.Record {
	t.Helper()
	cfg := traffic.DefaultGeneratorConfig()
	cfg.NumNormal, cfg.NumAnomalous, cfg.NumDoS = 40, 5, 5
	g, err := traffic.NewGenerator(cfg)
	require.NoError(t, err)
	return g.Generate()
}

func TestExportOpenCSV(t *testing.T) {
	records := generate(t)
	path := filepath.Join(t.TempDir(), "batch.csv")

	require.NoError(t, Export(path, records))

	src, err := Open(path)
	require.NoError(t, err)
	got, err := ReadAll(src)
	require.NoError(t, err)

	assert.Equal(t, records, got)
	assert.True(t, Labeled(path))
}

func TestExportOpenPcap(t *testing.T) {
	records := generate(t)
	path := filepath.Join(t.TempDir(), "batch.PCAP")

	require.NoError(t, Export(path, records))

	src, err := Open(path)
	require.NoError(t, err)
	got, err := ReadAll(src)
	require.NoError(t, err)

	require.Len(t, got, len(records))
	for i := range records {
		assert.Equal(t, records[i].SourceID, got[i].SourceID)
		assert.Equal(t, records[i].PacketSize, got[i].PacketSize)
	}
	assert.False(t, Labeled(path))
}

func TestExportPcapRejectsSmallFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.pcap")
	err := Export(path, []traffic.Record{{SourceID: "192.168.1.1", PacketSize: 10}})
	assert.ErrorIs(t, err, pcap.ErrFrameTooSmall)
}

func TestExportFailureRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.pcap")
	records := []traffic.Record{
		{SourceID: "192.168.1.1", PacketSize: 50},
		{SourceID: "host-b", PacketSize: 50},
	}

	err := Export(path, records)
	assert.ErrorIs(t, err, pcap.ErrNotIPv4)
	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestExportGeneratedPcap(t *testing.T) {
	g, err := traffic.NewGenerator(traffic.DefaultGeneratorConfig())
	require.NoError(t, err)
	records := g.Generate()

	path := filepath.Join(t.TempDir(), "traffic.pcap")
	require.NoError(t, Export(path, records))

	src, err := Open(path)
	require.NoError(t, err)
	got, err := ReadAll(src)
	require.NoError(t, err)
	assert.Len(t, got, len(records))
}

func TestGeneratorIsSource(t *testing.T) {
	g, err := traffic.NewGenerator(traffic.DefaultGeneratorConfig())
	require.NoError(t, err)

	var src Source = g
	records, err := ReadAll(src)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}
