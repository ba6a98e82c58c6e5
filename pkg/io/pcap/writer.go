package pcap

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// HeaderLength is the size of the Ethernet, IPv4 and UDP headers written
// for every record. Only the headers are captured; the original frame
// length carries the packet size. Smaller records cannot carry their source
// address and are rejected.
const HeaderLength = 14 + 20 + 8

var (
	// ErrFrameTooSmall is returned for records smaller than HeaderLength.
	ErrFrameTooSmall = errors.New("packet size below frame header length")
	// ErrNotIPv4 is returned for records whose source is not an IPv4 address.
	ErrNotIPv4 = errors.New("source is not an IPv4 address")
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	dstIP  = net.IPv4(10, 0, 0, 1).To4()
)

// Writer writes records as truncated UDP frames to a capture file.
type Writer struct {
	file   *os.File
	writer *pcapgo.Writer
	buf    gopacket.SerializeBuffer
}

// NewFileWriter creates a capture file and writes its header.
func NewFileWriter(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	w, err := newWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	w.file = file

	return w, nil
}

func newWriter(dst io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(dst)
	if err := pw.WriteFileHeader(traffic.MaxPacketSize, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	return &Writer{writer: pw, buf: gopacket.NewSerializeBuffer()}, nil
}

// WriteAll writes records in order.
func (w *Writer) WriteAll(records []traffic.Record) error {
	for i, r := range records {
		if err := w.Write(r); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// Write writes a single record.
func (w *Writer) Write(r traffic.Record) error {
	src := net.ParseIP(r.SourceID).To4()
	if src == nil {
		return fmt.Errorf("%w: %q", ErrNotIPv4, r.SourceID)
	}
	if r.PacketSize < HeaderLength {
		return fmt.Errorf("%w: %d < %d", ErrFrameTooSmall, r.PacketSize, HeaderLength)
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src,
		DstIP:    dstIP,
		Length:   uint16(r.PacketSize - 14),
	}
	udp := &layers.UDP{
		SrcPort: 40000,
		DstPort: 9, // discard
		Length:  uint16(r.PacketSize - 14 - 20),
	}

	if err := w.buf.Clear(); err != nil {
		return err
	}
	if err := gopacket.SerializeLayers(w.buf, gopacket.SerializeOptions{}, eth, ip, udp); err != nil {
		return err
	}

	// Ethernet serialization pads short frames to the 60 byte minimum.
	data := w.buf.Bytes()
	if len(data) > r.PacketSize {
		data = data[:r.PacketSize]
	}
	return w.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     toTime(r.Timestamp),
		CaptureLength: len(data),
		Length:        r.PacketSize,
	}, data)
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
