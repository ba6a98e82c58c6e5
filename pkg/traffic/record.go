// Package traffic defines the raw packet records the detectors operate on.
package traffic

import (
	"errors"
	"fmt"
	"math"
)

// MaxPacketSize is the largest packet size a record may carry.
const MaxPacketSize = 65535

// ErrInvalidRecord is returned when a batch contains a malformed record.
var ErrInvalidRecord = errors.New("invalid traffic record")

// Label is the ground truth or predicted class of a record.
type Label int

const (
	// Benign marks normal traffic.
	Benign Label = iota
	// Malicious marks attack traffic.
	Malicious
)

// String returns the label as written in datasets and reports.
func (l Label) String() string {
	switch l {
	case Benign:
		return "benign"
	case Malicious:
		return "malicious"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// ParseLabel converts a dataset label back to a Label.
// It accepts the numeric forms 0 and 1 as well.
func ParseLabel(s string) (Label, error) {
	switch s {
	case "benign", "0":
		return Benign, nil
	case "malicious", "1":
		return Malicious, nil
	default:
		return Benign, fmt.Errorf("%w: unknown label %q", ErrInvalidRecord, s)
	}
}

// Record is a single observed packet. Records are never mutated once built.
type Record struct {
	// Timestamp in seconds since the Unix epoch.
	Timestamp float64
	// SourceID identifies the originating host, e.g. "192.168.1.7".
	SourceID string
	// PacketSize in bytes.
	PacketSize int
	// Label is the ground truth class.
	Label Label
}

// Validate checks a single record.
func (r Record) Validate() error {
	if r.SourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrInvalidRecord)
	}
	if r.PacketSize < 0 || r.PacketSize > MaxPacketSize {
		return fmt.Errorf("%w: packet size %d out of range [0, %d]", ErrInvalidRecord, r.PacketSize, MaxPacketSize)
	}
	if math.IsNaN(r.Timestamp) || math.IsInf(r.Timestamp, 0) {
		return fmt.Errorf("%w: non-finite timestamp", ErrInvalidRecord)
	}
	if r.Label != Benign && r.Label != Malicious {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, r.Label)
	}
	return nil
}

// Validate checks every record of a batch and rejects the batch on the
// first malformed one.
func Validate(records []Record) error {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// Labels returns the ground truth labels in batch order.
func Labels(records []Record) []Label {
	labels := make([]Label, len(records))
	for i, r := range records {
		labels[i] = r.Label
	}
	return labels
}

// CountBySource returns the number of records per source id.
func CountBySource(records []Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.SourceID]++
	}
	return counts
}
