package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/0xRadioAc7iv/go-daybreak/internal/record"
)

// Serializer turns keys and values into the bytes stored in the journal.
type Serializer interface {
	EncodeKey(key any) (string, error)
	Dump(value any) ([]byte, error)
	Load(data []byte) (any, error)
}

// Raw stores keys and values as they are. Only strings and byte slices are
// accepted; Load always returns a []byte.
type Raw struct{}

func (Raw) EncodeKey(key any) (string, error) {
	switch k := key.(type) {
	case string:
		return k, nil
	case []byte:
		return string(k), nil
	default:
		return "", record.Unsupported(key)
	}
}

func (Raw) Dump(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, record.Unsupported(value)
	}
}

func (Raw) Load(data []byte) (any, error) {
	return data, nil
}

// Kind is a set of value kinds a Tagged serializer accepts.
type Kind uint8

const (
	KindBytes Kind = 1 << iota
	KindString
	KindJSON
	KindProto

	AllKinds = KindBytes | KindString | KindJSON | KindProto
)

// Value tags. Every Tagged payload starts with one of these bytes.
const (
	tagBytes  = 'b'
	tagString = 's'
	tagJSON   = 'j'
	tagProto  = 'p'
	tagZstd   = 'z'
)

// Tagged prefixes every value with a one-byte type tag so Load gives back
// the Go type that was stored:
//
//	b  []byte
//	s  string
//	j  JSON document, loaded as map[string]any, []any, float64, bool or nil
//	p  protobuf message wrapped in anypb.Any
//	z  zstd compressed tagged payload
//
// Only the kinds set in Kinds are accepted by Dump. Payloads larger than
// CompressAbove bytes are compressed; 0 disables compression.
type Tagged struct {
	Kinds         Kind
	CompressAbove int
}

func NewTagged() *Tagged {
	return &Tagged{Kinds: AllKinds, CompressAbove: DefaultCompressAbove}
}

// EncodeKey accepts strings, byte slices, fmt.Stringers and integers.
func (t *Tagged) EncodeKey(key any) (string, error) {
	switch k := key.(type) {
	case string:
		return k, nil
	case []byte:
		return string(k), nil
	case fmt.Stringer:
		return k.String(), nil
	case int:
		return strconv.Itoa(k), nil
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", k), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", k), nil
	default:
		return "", record.Unsupported(key)
	}
}

func (t *Tagged) Dump(value any) ([]byte, error) {
	data, err := t.dump(value)
	if err != nil {
		return nil, err
	}
	if t.CompressAbove <= 0 || len(data) <= t.CompressAbove {
		return data, nil
	}

	enc, _, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1, len(data)/2)
	out[0] = tagZstd
	return enc.EncodeAll(data, out), nil
}

func (t *Tagged) dump(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		if t.Kinds&KindBytes == 0 {
			return nil, record.Unsupported(value)
		}
		return append([]byte{tagBytes}, v...), nil

	case string:
		if t.Kinds&KindString == 0 {
			return nil, record.Unsupported(value)
		}
		return append([]byte{tagString}, v...), nil

	case proto.Message:
		if t.Kinds&KindProto == 0 {
			return nil, record.Unsupported(value)
		}
		wrapped, err := anypb.New(v)
		if err != nil {
			return nil, fmt.Errorf("wrap %T: %w", value, err)
		}
		payload, err := proto.Marshal(wrapped)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", value, err)
		}
		return append([]byte{tagProto}, payload...), nil
	}

	if t.Kinds&KindJSON == 0 {
		return nil, record.Unsupported(value)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, &record.FormatError{Kind: record.UnsupportedValueType, Offset: -1, Detail: err.Error()}
	}
	return append([]byte{tagJSON}, payload...), nil
}

func (t *Tagged) Load(data []byte) (any, error) {
	if len(data) > 0 && data[0] == tagZstd {
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		if data, err = dec.DecodeAll(data[1:], nil); err != nil {
			return nil, fmt.Errorf("decompress value: %w", err)
		}
		if len(data) > 0 && data[0] == tagZstd {
			return nil, badTag(tagZstd)
		}
	}

	if len(data) == 0 {
		return nil, &record.FormatError{Kind: record.UnsupportedValueType, Offset: -1, Detail: "empty value"}
	}

	payload := data[1:]
	switch data[0] {
	case tagBytes:
		return append([]byte(nil), payload...), nil

	case tagString:
		return string(payload), nil

	case tagJSON:
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("decode json value: %w", err)
		}
		return v, nil

	case tagProto:
		wrapped := &anypb.Any{}
		if err := proto.Unmarshal(payload, wrapped); err != nil {
			return nil, fmt.Errorf("decode proto value: %w", err)
		}
		msg, err := wrapped.UnmarshalNew()
		if err != nil {
			// Type not linked into this binary.
			return wrapped, nil
		}
		return msg, nil

	default:
		return nil, badTag(data[0])
	}
}

func badTag(tag byte) error {
	return &record.FormatError{
		Kind:   record.UnsupportedValueType,
		Offset: -1,
		Detail: fmt.Sprintf("unknown value tag %q", tag),
	}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCodec returns the shared encoder and decoder. Both are safe for
// concurrent EncodeAll/DecodeAll calls.
func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}
