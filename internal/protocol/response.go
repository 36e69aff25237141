package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Status tells the client how to read a response body.
type Status uint8

const (
	StatusOK  Status = '+' // body is the result
	StatusNil Status = '_' // key not found, body is empty
	StatusErr Status = '-' // body is an error message
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNil:
		return "nil"
	case StatusErr:
		return "err"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

type Response struct {
	Status Status
	Body   string
}

// EncodeResponse serializes a response as
//
//	<status:uint8><body_len:uint32><body>
func EncodeResponse(status Status, body string) ([]byte, error) {
	if len(body) > MaxPayloadSize {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxPayloadSize)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 5+len(body)))

	buf.WriteByte(byte(status))
	if err := binary.Write(buf, binary.BigEndian, uint32(len(body))); err != nil {
		return nil, err
	}
	buf.WriteString(body)

	return buf.Bytes(), nil
}

func DecodeResponse(r io.Reader) (*Response, error) {
	var status uint8
	var bodyLen uint32

	if err := binary.Read(r, binary.BigEndian, &status); err != nil {
		return nil, err
	}
	switch Status(status) {
	case StatusOK, StatusNil, StatusErr:
	default:
		return nil, fmt.Errorf("unknown response status %q", status)
	}

	if err := binary.Read(r, binary.BigEndian, &bodyLen); err != nil {
		return nil, err
	}
	if bodyLen > MaxPayloadSize {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxPayloadSize)
	}

	buf := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return &Response{Status: Status(status), Body: string(buf)}, nil
}
