package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Record is one logical mutation: an upsert of Key to Value, or the deletion
// of Key when Tombstone is set (Value is then ignored).
type Record struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

const (
	// Magic string at the start of every journal file
	Magic = "DAYBREAK"

	// Version of the journal file format
	Version uint16 = 1

	// Magic (8) + Version (2)
	HeaderSize = len(Magic) + 2

	// KeySize (4) + ValueSize (4)
	FrameHeaderSize = 8

	// Trailing CRC32 of every frame
	CRCSize = 4

	// ValueSize reserved to mark a deleted key
	TombstoneSize uint32 = math.MaxUint32
)

func New(key, value []byte) Record {
	return Record{Key: key, Value: value}
}

func NewTombstone(key []byte) Record {
	return Record{Key: key, Tombstone: true}
}

// FrameSize returns the number of bytes rec occupies on disk.
func (rec Record) FrameSize() int {
	n := FrameHeaderSize + len(rec.Key) + CRCSize
	if !rec.Tombstone {
		n += len(rec.Value)
	}
	return n
}

// Header returns the journal file header.
func Header() []byte {
	hdr := make([]byte, HeaderSize)
	copy(hdr, Magic)
	binary.BigEndian.PutUint16(hdr[len(Magic):], Version)
	return hdr
}

// ReadHeader seeks to the start of the stream and validates the journal
// header. The stream is left positioned right after the header.
func ReadHeader(r io.ReadSeeker) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &FormatError{Kind: BadMagic, Offset: 0, Detail: "file too short"}
		}
		return err
	}
	if string(magic) != Magic {
		return &FormatError{Kind: BadMagic, Offset: 0, Detail: "not a daybreak database"}
	}

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &FormatError{Kind: VersionMismatch, Offset: int64(len(Magic)), Detail: "missing version"}
		}
		return err
	}
	if version != Version {
		return &FormatError{
			Kind:   VersionMismatch,
			Offset: int64(len(Magic)),
			Detail: fmt.Sprintf("expected database version %d, got %d", Version, version),
		}
	}
	return nil
}

// Check reports whether rec can be framed. Keys and values must fit in a
// uint32 length, and a value may not be as long as the tombstone marker.
func Check(rec Record) error {
	if uint64(len(rec.Key)) > math.MaxUint32 {
		return &FormatError{Kind: UnsupportedValueType, Offset: -1, Detail: "key too large"}
	}
	if !rec.Tombstone && uint64(len(rec.Value)) >= uint64(TombstoneSize) {
		return &FormatError{Kind: UnsupportedValueType, Offset: -1, Detail: "value too large"}
	}
	return nil
}

// Encode serializes rec into a single frame.
func Encode(rec Record) ([]byte, error) {
	return AppendFrame(make([]byte, 0, rec.FrameSize()), rec)
}

// AppendFrame appends the frame of rec to dst and returns the extended slice.
//
// Layout (big-endian):
//
//	<key_len:uint32><value_len:uint32><key><value><crc32:uint32>
//
// value_len is TombstoneSize for deletions, in which case no value bytes
// follow the key. The CRC covers every preceding byte of the frame.
func AppendFrame(dst []byte, rec Record) ([]byte, error) {
	if err := Check(rec); err != nil {
		return dst, err
	}
	valueSize := TombstoneSize
	if !rec.Tombstone {
		valueSize = uint32(len(rec.Value))
	}

	start := len(dst)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(rec.Key)))
	dst = binary.BigEndian.AppendUint32(dst, valueSize)
	dst = append(dst, rec.Key...)
	if !rec.Tombstone {
		dst = append(dst, rec.Value...)
	}
	return binary.BigEndian.AppendUint32(dst, CalculateCRC(dst[start:])), nil
}

// Decoder reads frames one at a time from a stream.
//
// Decoder is forward only: once a frame has been consumed it cannot be read
// again from the same Decoder.
type Decoder struct {
	r   io.Reader
	off int64
	rec Record
	err error
}

// NewDecoder returns a Decoder reading frames from r. base is the absolute
// file offset of the first byte of r and is only used to report positions.
func NewDecoder(r io.Reader, base int64) *Decoder {
	return &Decoder{r: r, off: base}
}

// Next decodes the next frame. It returns false at the end of the stream or
// on the first error; check Err() to tell them apart.
func (d *Decoder) Next() bool {
	if d.err != nil {
		return false
	}

	var meta [FrameHeaderSize]byte
	if _, err := io.ReadFull(d.r, meta[:]); err != nil {
		if err == io.EOF {
			return false
		}
		d.err = d.frameError(err, "truncated frame header")
		return false
	}

	keySize := binary.BigEndian.Uint32(meta[:4])
	valueSize := binary.BigEndian.Uint32(meta[4:])
	tombstone := valueSize == TombstoneSize

	dataSize := int64(keySize)
	if !tombstone {
		dataSize += int64(valueSize)
	}

	// CopyN grows the buffer only as far as the stream actually goes, so a
	// corrupt length field can't force a huge allocation.
	buf := bytes.NewBuffer(make([]byte, 0, FrameHeaderSize+CRCSize))
	buf.Write(meta[:])
	if _, err := io.CopyN(buf, d.r, dataSize); err != nil {
		d.err = d.frameError(err, "truncated frame payload")
		return false
	}

	var crc [CRCSize]byte
	if _, err := io.ReadFull(d.r, crc[:]); err != nil {
		d.err = d.frameError(err, "truncated frame checksum")
		return false
	}

	frame := buf.Bytes()
	if !ValidateCRC(frame, binary.BigEndian.Uint32(crc[:])) {
		d.err = &FormatError{Kind: CrcMismatch, Offset: d.off, Detail: "your data might be corrupted"}
		return false
	}

	data := frame[FrameHeaderSize:]
	d.rec = Record{Key: data[:keySize], Tombstone: tombstone}
	if !tombstone {
		d.rec.Value = data[keySize:]
	}
	d.off += int64(len(frame) + CRCSize)
	return true
}

func (d *Decoder) frameError(err error, detail string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{Kind: CrcMismatch, Offset: d.off, Detail: detail}
	}
	return err
}

// Record returns the frame decoded by the last successful Next.
func (d *Decoder) Record() Record {
	return d.rec
}

// Err returns the first error encountered, or nil on a clean end of stream.
func (d *Decoder) Err() error {
	return d.err
}

// Offset returns the absolute offset just past the last good frame.
func (d *Decoder) Offset() int64 {
	return d.off
}

// DecodeAll decodes every frame of data. It returns either all records or an
// error for the first bad frame, never a partial result.
func DecodeAll(data []byte, base int64) ([]Record, error) {
	var records []Record
	dec := NewDecoder(bytes.NewReader(data), base)
	for dec.Next() {
		records = append(records, dec.Record())
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
