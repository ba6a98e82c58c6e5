// Package threshold implements the per-source volume rule used as the
// baseline detector.
package threshold

import (
	"fmt"
	"sort"

	"github.com/hed1ad/trafficeval/pkg/detectors"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// Detector flags every record of a source that sent more than Limit records.
type Detector struct {
	limit int
}

// Source is a flagged source and its record count.
type Source struct {
	ID    string `json:"source_id"`
	Count int    `json:"count"`
}

// New creates a volume threshold detector. A limit of 0 flags every source.
func New(limit int) (*Detector, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: dos_threshold must not be negative, got %d", detectors.ErrInvalidConfig, limit)
	}
	return &Detector{limit: limit}, nil
}

// Limit returns the configured per-source record limit.
func (d *Detector) Limit() int {
	return d.limit
}

// Detect labels each record malicious when its source count strictly
// exceeds the limit.
func (d *Detector) Detect(records []traffic.Record) []detectors.Result {
	counts := traffic.CountBySource(records)

	results := make([]detectors.Result, len(records))
	for i, r := range records {
		count := counts[r.SourceID]
		label := traffic.Benign
		if count > d.limit {
			label = traffic.Malicious
		}
		results[i] = detectors.Result{
			RecordID:  i,
			Predicted: label,
			Detector:  detectors.NameThreshold,
			Score:     float64(count),
		}
	}

	return results
}

// Sources returns the flagged sources, busiest first.
func (d *Detector) Sources(records []traffic.Record) []Source {
	var flagged []Source
	for id, count := range traffic.CountBySource(records) {
		if count > d.limit {
			flagged = append(flagged, Source{ID: id, Count: count})
		}
	}

	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].Count != flagged[j].Count {
			return flagged[i].Count > flagged[j].Count
		}
		return flagged[i].ID < flagged[j].ID
	})

	return flagged
}
