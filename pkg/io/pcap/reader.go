// Package pcap stores traffic batches as offline capture files so they can
// be inspected with standard packet tools, and reads such files back.
package pcap

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// ErrNotIP is returned for a frame without a network layer.
var ErrNotIP = errors.New("frame has no network layer")

// Reader reads records from a capture file. Captures carry no ground truth,
// so every record is labeled benign.
type Reader struct {
	file   *os.File
	reader *pcapgo.Reader
}

// NewFileReader creates a reader for PCAP files.
func NewFileReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	reader, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	return &Reader{file: file, reader: reader}, nil
}

// Read returns one record per IP frame. Frames without a network layer are
// skipped.
func (r *Reader) Read() ([]traffic.Record, error) {
	var records []traffic.Record

	for {
		data, ci, err := r.reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		packet := gopacket.NewPacket(data, r.reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		packet.Metadata().CaptureInfo = ci

		rec, err := Extract(packet)
		if errors.Is(err, ErrNotIP) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := traffic.Validate(records); err != nil {
		return nil, err
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

// Extract converts a captured packet to a record. The packet size is the
// original frame length, the source is the network layer source address.
func Extract(packet gopacket.Packet) (traffic.Record, error) {
	network := packet.NetworkLayer()
	if network == nil {
		return traffic.Record{}, ErrNotIP
	}

	ci := packet.Metadata().CaptureInfo
	return traffic.Record{
		Timestamp:  fromTime(ci.Timestamp),
		SourceID:   network.NetworkFlow().Src().String(),
		PacketSize: ci.Length,
		Label:      traffic.Benign,
	}, nil
}

func fromTime(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func toTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
