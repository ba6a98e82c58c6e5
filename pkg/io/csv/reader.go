// Package csv reads and writes traffic datasets as CSV tables.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// ErrHeader is returned when a dataset does not start with Header.
var ErrHeader = errors.New("unexpected dataset header")

// Header is the fixed column order of a dataset.
var Header = []string{"timestamp", "source_id", "packet_size", "ground_truth_label"}

// Reader reads a dataset from a CSV file.
type Reader struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

// NewReader opens a dataset file and checks its header row.
func NewReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := newReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	r.file = file

	return r, nil
}

func newReader(src io.Reader) (*Reader, error) {
	r := &Reader{reader: csv.NewReader(src)}
	r.reader.FieldsPerRecord = len(Header)
	r.reader.ReuseRecord = true

	headers, err := r.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}
	if !slices.Equal(headers, Header) {
		return nil, fmt.Errorf("%w: got %v, want %v", ErrHeader, headers, Header)
	}
	r.headers = slices.Clone(headers)

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns every record of the dataset. A single malformed row rejects
// the whole dataset.
func (r *Reader) Read() ([]traffic.Record, error) {
	var records []traffic.Record

	for {
		row, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		rec, err := parseRow(row)
		if err != nil {
			line, _ := r.reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow converts a CSV row to a validated record.
func parseRow(row []string) (traffic.Record, error) {
	ts, err := strconv.ParseFloat(row[0], 64)
	if err != nil {
		return traffic.Record{}, fmt.Errorf("%w: timestamp: %w", traffic.ErrInvalidRecord, err)
	}
	size, err := strconv.Atoi(row[2])
	if err != nil {
		return traffic.Record{}, fmt.Errorf("%w: packet_size: %w", traffic.ErrInvalidRecord, err)
	}
	label, err := traffic.ParseLabel(row[3])
	if err != nil {
		return traffic.Record{}, err
	}

	rec := traffic.Record{
		Timestamp:  ts,
		SourceID:   row[1],
		PacketSize: size,
		Label:      label,
	}
	if err := rec.Validate(); err != nil {
		return traffic.Record{}, err
	}
	return rec, nil
}

// ReadDataset reads a full dataset, header included, from src.
func ReadDataset(src io.Reader) ([]traffic.Record, error) {
	r, err := newReader(src)
	if err != nil {
		return nil, err
	}
	return r.Read()
}
