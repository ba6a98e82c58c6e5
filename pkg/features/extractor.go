// Package features turns traffic records into scaled numeric feature vectors.
package features

import (
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// Column indices of a feature vector.
const (
	PacketSize = iota
	SourceRecordCount
	SourceMeanPacketSize

	// Width is the number of features per record.
	Width
)

// Names returns the names of extracted features in column order.
func Names() []string {
	return []string{
		"packet_size",
		"source_record_count",
		"source_mean_packet_size",
	}
}

// aggregate accumulates per-source statistics.
type aggregate struct {
	count int
	sum   float64
}

func (a *aggregate) mean() float64 {
	return a.sum / float64(a.count)
}

// Raw returns the unscaled feature matrix, one row per record.
// The per-source count and mean are built in a single pass and then joined
// back onto every record of the source.
func Raw(records []traffic.Record) [][]float64 {
	bySource := make(map[string]*aggregate)
	for _, r := range records {
		agg, ok := bySource[r.SourceID]
		if !ok {
			agg = &aggregate{}
			bySource[r.SourceID] = agg
		}
		agg.count++
		agg.sum += float64(r.PacketSize)
	}

	rows := make([][]float64, len(records))
	for i, r := range records {
		agg := bySource[r.SourceID]
		row := make([]float64, Width)
		row[PacketSize] = float64(r.PacketSize)
		row[SourceRecordCount] = float64(agg.count)
		row[SourceMeanPacketSize] = agg.mean()
		rows[i] = row
	}

	return rows
}

// Extract returns z-score normalized feature vectors for the batch.
// An empty batch yields an empty result.
func Extract(records []traffic.Record) [][]float64 {
	raw := Raw(records)
	return Fit(raw).Transform(raw)
}
