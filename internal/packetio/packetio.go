// Package packetio writes and reads captured packets as a length-prefixed
// msgpack stream, optionally zstd-compressed.
//
// File layout:
//
//	"DCAP" | version (1 byte) | flags (1 byte)
//	body: repeated [4-byte big-endian length | msgpack Record]
//
// With flagZstd set, the body (not the header) is a single zstd stream.
package packetio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

const (
	magic    = "DCAP"
	version  = 1
	flagZstd = 1 << 0

	// maxRecordSize bounds a single encoded record
	maxRecordSize = 64 << 20
)

var (
	// ErrBadHeader is returned when the stream does not start with a valid header
	ErrBadHeader = errors.New("packetio: bad header")
	// ErrRecordTooLarge is returned for length prefixes above the limit
	ErrRecordTooLarge = errors.New("packetio: record too large")
)

// Record is one dumped packet
type Record struct {
	Stream    int       `msgpack:"stream"`
	PTS       int64     `msgpack:"pts"`
	Seq       uint64    `msgpack:"seq"`
	TraceID   string    `msgpack:"trace_id"`
	ArrivedAt time.Time `msgpack:"arrived_at"`
	Data      []byte    `msgpack:"data"`
}

// FromPacket copies the fields of pkt. Data is shared, not copied: write the
// record before releasing the packet.
func FromPacket(pkt *devicecapture.Packet) Record {
	return Record{
		Stream:    pkt.Stream,
		PTS:       pkt.PTS,
		Seq:       pkt.Seq,
		TraceID:   pkt.TraceID,
		ArrivedAt: pkt.ArrivedAt,
		Data:      pkt.Data,
	}
}

// Writer appends records to a stream. Not safe for concurrent use.
type Writer struct {
	buf    *bufio.Writer
	zw     *zstd.Encoder
	body   io.Writer
	file   *os.File // set by Create
	prefix [4]byte
	count  int
}

// NewWriter writes the header to w and returns a Writer for the body.
func NewWriter(w io.Writer, compress bool) (*Writer, error) {
	pw := &Writer{buf: bufio.NewWriter(w)}

	var flags byte
	if compress {
		flags |= flagZstd
	}
	if _, err := pw.buf.WriteString(magic); err != nil {
		return nil, fmt.Errorf("packetio: write header: %w", err)
	}
	if _, err := pw.buf.Write([]byte{version, flags}); err != nil {
		return nil, fmt.Errorf("packetio: write header: %w", err)
	}

	pw.body = pw.buf
	if compress {
		zw, err := zstd.NewWriter(pw.buf)
		if err != nil {
			return nil, fmt.Errorf("packetio: zstd writer: %w", err)
		}
		pw.zw = zw
		pw.body = zw
	}
	return pw, nil
}

// Create creates (or truncates) path and returns a Writer on it.
func Create(path string, compress bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("packetio: create %s: %w", path, err)
	}
	w, err := NewWriter(f, compress)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(r Record) error {
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("packetio: marshal record: %w", err)
	}
	if len(data) > maxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(data))
	}

	binary.BigEndian.PutUint32(w.prefix[:], uint32(len(data)))
	if _, err := w.body.Write(w.prefix[:]); err != nil {
		return fmt.Errorf("packetio: write length prefix: %w", err)
	}
	if _, err := w.body.Write(data); err != nil {
		return fmt.Errorf("packetio: write record: %w", err)
	}

	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes everything and closes the file if the Writer owns one.
// The io.Writer passed to NewWriter is not closed.
func (w *Writer) Close() error {
	var errs []error
	if w.zw != nil {
		errs = append(errs, w.zw.Close())
	}
	errs = append(errs, w.buf.Flush())
	if w.file != nil {
		errs = append(errs, w.file.Close())
	}
	return errors.Join(errs...)
}

// Reader reads records from a stream. Not safe for concurrent use.
type Reader struct {
	body       io.Reader
	zr         *zstd.Decoder
	compressed bool
	prefix     [4]byte
}

// NewReader validates the header of r and returns a Reader for the body.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	var hdr [6]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if string(hdr[:4]) != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, hdr[:4])
	}
	if hdr[4] != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, hdr[4])
	}

	pr := &Reader{body: br, compressed: hdr[5]&flagZstd != 0}
	if pr.compressed {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("packetio: zstd reader: %w", err)
		}
		pr.zr = zr
		pr.body = zr
	}
	return pr, nil
}

// Compressed reports whether the body is zstd-compressed.
func (r *Reader) Compressed() bool {
	return r.compressed
}

// Next returns the next record, or io.EOF at a clean end of stream.
// A stream cut inside a record returns io.ErrUnexpectedEOF.
func (r *Reader) Next() (Record, error) {
	if _, err := io.ReadFull(r.body, r.prefix[:]); err != nil {
		return Record{}, err // io.EOF when no bytes at all
	}

	n := binary.BigEndian.Uint32(r.prefix[:])
	if n > maxRecordSize {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r.body, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}

	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("packetio: unmarshal record: %w", err)
	}
	return rec, nil
}

// Close releases decoder resources. The underlying io.Reader is not closed.
func (r *Reader) Close() {
	if r.zr != nil {
		r.zr.Close()
	}
}
