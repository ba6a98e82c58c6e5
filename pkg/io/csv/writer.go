package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hed1ad/trafficeval/pkg/detectors"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// ResultsHeader is the column order of a per-record results table.
var ResultsHeader = []string{
	"record_id",
	"timestamp",
	"source_id",
	"packet_size",
	"ground_truth_label",
	"threshold_label",
	"outlier_label",
	"anomaly_score",
}

// Writer writes a dataset to a CSV file.
type Writer struct {
	file   *os.File
	writer *csv.Writer
}

// NewWriter creates the dataset file and writes the header row.
func NewWriter(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	w := &Writer{file: file, writer: csv.NewWriter(file)}
	if err := w.writer.Write(Header); err != nil {
		file.Close()
		return nil, err
	}

	return w, nil
}

// WriteAll writes records in order, one row each.
func (w *Writer) WriteAll(records []traffic.Record) error {
	return writeRecords(w.writer, records)
}

// Close flushes buffered rows and closes the file.
func (w *Writer) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// WriteDataset writes a full dataset, header included, to dst.
func WriteDataset(dst io.Writer, records []traffic.Record) error {
	cw := csv.NewWriter(dst)
	if err := cw.Write(Header); err != nil {
		return err
	}
	if err := writeRecords(cw, records); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeRecords(cw *csv.Writer, records []traffic.Record) error {
	row := make([]string, len(Header))
	for _, r := range records {
		row[0] = formatFloat(r.Timestamp)
		row[1] = r.SourceID
		row[2] = strconv.Itoa(r.PacketSize)
		row[3] = r.Label.String()
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteResults writes one row per record with both detectors' decisions,
// for plotting.
func WriteResults(dst io.Writer, records []traffic.Record, threshold, outlier []detectors.Result) error {
	if len(threshold) != len(records) || len(outlier) != len(records) {
		return fmt.Errorf("results for %d and %d records, batch has %d", len(threshold), len(outlier), len(records))
	}

	cw := csv.NewWriter(dst)
	if err := cw.Write(ResultsHeader); err != nil {
		return err
	}

	row := make([]string, len(ResultsHeader))
	for i, r := range records {
		row[0] = strconv.Itoa(i)
		row[1] = formatFloat(r.Timestamp)
		row[2] = r.SourceID
		row[3] = strconv.Itoa(r.PacketSize)
		row[4] = r.Label.String()
		row[5] = threshold[i].Predicted.String()
		row[6] = outlier[i].Predicted.String()
		row[7] = formatFloat(outlier[i].Score)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
