// Package io provides dataset sources and sinks for traffic batches.
package io

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hed1ad/trafficeval/pkg/io/csv"
	"github.com/hed1ad/trafficeval/pkg/io/pcap"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// Source is the interface for reading a batch of traffic records.
type Source interface {
	// Read returns the complete batch.
	Read() ([]traffic.Record, error)

	// Close releases resources.
	Close() error
}

// Sink is the interface for persisting a batch of traffic records.
type Sink interface {
	// WriteAll outputs every record in order.
	WriteAll(records []traffic.Record) error

	// Close flushes and releases resources.
	Close() error
}

// Labeled reports whether datasets in the file's format carry ground truth.
func Labeled(filename string) bool {
	return !isPcap(filename)
}

// Open returns a source for a dataset file, chosen by extension:
// .pcap files are captures, anything else is CSV.
func Open(filename string) (Source, error) {
	if isPcap(filename) {
		return pcap.NewFileReader(filename)
	}
	return csv.NewReader(filename)
}

// Create returns a sink for a dataset file, chosen like Open.
func Create(filename string) (Sink, error) {
	if isPcap(filename) {
		return pcap.NewFileWriter(filename)
	}
	return csv.NewWriter(filename)
}

// ReadAll reads a whole batch from src and closes it.
func ReadAll(src Source) ([]traffic.Record, error) {
	records, err := src.Read()
	if cerr := src.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Export writes records to a new dataset file.
func Export(filename string, records []traffic.Record) error {
	sink, err := Create(filename)
	if err != nil {
		return err
	}
	if err := sink.WriteAll(records); err != nil {
		sink.Close()
		os.Remove(filename)
		return fmt.Errorf("%s: %w", filename, err)
	}
	return sink.Close()
}

func isPcap(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pcap")
}
