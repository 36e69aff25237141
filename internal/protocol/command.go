package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// MaxPayloadSize bounds the key and value of a single command.
const MaxPayloadSize = 64 * 1024 * 1024

// Command represents a decoded client command received by the daybreak server.
//
// A Command consists of a command name (Cmd), an optional key, and an optional
// value. The meaning of Key and Val depends on the command type (e.g. GET,
// SET, DELETE).
type Command struct {
	Cmd string // Command name (e.g. "get", "set", "delete")
	Key string // Key argument (may be empty)
	Val string // Value argument (may be empty)
}

// EncodeCommand serializes a client command into its wire format.
//
// The command is encoded as:
//
//	<cmd_len:uint8><key_len:uint32><val_len:uint32><cmd><key><val>
//
// All integer fields are encoded using big-endian byte order.
// The command name length is limited to 255 bytes.
func EncodeCommand(cmd, key, val string) ([]byte, error) {
	if len(cmd) > math.MaxUint8 {
		return nil, fmt.Errorf("command name too long: %d bytes", len(cmd))
	}
	if len(key) > MaxPayloadSize || len(val) > MaxPayloadSize {
		return nil, fmt.Errorf("command payload exceeds %d bytes", MaxPayloadSize)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 9+len(cmd)+len(key)+len(val)))

	buf.WriteByte(uint8(len(cmd)))
	if err := binary.Write(buf, binary.BigEndian, uint32(len(key))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(val))); err != nil {
		return nil, err
	}

	buf.WriteString(cmd)
	buf.WriteString(key)
	buf.WriteString(val)

	return buf.Bytes(), nil
}

// DecodeCommand reads and decodes one command from r.
//
// DecodeCommand blocks until the full command has been read or an
// error occurs.
func DecodeCommand(r io.Reader) (*Command, error) {
	var cmdLen uint8
	var keyLen uint32
	var valLen uint32

	if err := binary.Read(r, binary.BigEndian, &cmdLen); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &valLen); err != nil {
		return nil, err
	}
	if keyLen > MaxPayloadSize || valLen > MaxPayloadSize {
		return nil, fmt.Errorf("command payload exceeds %d bytes", MaxPayloadSize)
	}

	cmdB := make([]byte, cmdLen)
	keyB := make([]byte, keyLen)
	valB := make([]byte, valLen)

	if _, err := io.ReadFull(r, cmdB); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, keyB); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, valB); err != nil {
		return nil, err
	}

	return &Command{
		Cmd: string(cmdB),
		Key: string(keyB),
		Val: string(valB),
	}, nil
}
