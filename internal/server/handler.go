package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/go-daybreak/core"
	"github.com/0xRadioAc7iv/go-daybreak/internal/protocol"
)

// Handler serves the daybreak wire protocol on top of one database.
type Handler struct {
	db  *core.DB
	log *zap.SugaredLogger
}

func NewHandler(db *core.DB, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{db: db, log: log}
}

// ServeConn answers commands on conn until the client disconnects.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) {
	log := h.log.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	log.Debugf("client connected")

	for {
		command, err := protocol.DecodeCommand(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				log.Debugf("client disconnected")
			} else {
				log.Warnf("client dropped: %v", err)
			}
			return
		}

		status, body := h.Handle(command)
		if status == protocol.StatusErr {
			log.Infof("%s %q failed: %s", command.Cmd, command.Key, body)
		}

		if err := reply(conn, status, body); err != nil {
			log.Warnf("client dropped: %v", err)
			return
		}
	}
}

// Handle runs one command and returns the response to send.
func (h *Handler) Handle(command *protocol.Command) (protocol.Status, string) {
	switch strings.ToLower(command.Cmd) {
	case "ping":
		return protocol.StatusOK, "PONG!"
	case "set":
		return h.handleSet(command.Key, command.Val)
	case "get":
		return h.handleGet(command.Key)
	case "delete":
		return h.handleDelete(command.Key)
	case "exists":
		return protocol.StatusOK, strconv.FormatBool(h.db.HasKey(command.Key))
	case "count":
		return protocol.StatusOK, strconv.Itoa(h.db.Size())
	case "list":
		return h.handleList()
	case "flush":
		return done(h.db.Flush())
	case "load":
		return done(h.db.Load())
	case "compact":
		return h.handleCompact()
	case "clear":
		return done(h.db.Clear())
	case "bytesize":
		size, err := h.db.Bytesize()
		if err != nil {
			return protocol.StatusErr, err.Error()
		}
		return protocol.StatusOK, strconv.FormatInt(size, 10)
	case "logsize":
		return protocol.StatusOK, strconv.Itoa(h.db.Logsize())
	case "info":
		return h.handleInfo()
	case "help":
		return protocol.StatusOK, strings.TrimSpace(helpText)
	default:
		return protocol.StatusErr, "Invalid Command"
	}
}

func (h *Handler) handleSet(key, value string) (protocol.Status, string) {
	if key == "" {
		return protocol.StatusErr, "usage: SET <key> <value>"
	}
	return done(h.db.Set(key, value))
}

func (h *Handler) handleGet(key string) (protocol.Status, string) {
	value, ok, err := h.db.Fetch(key)
	if err != nil {
		return protocol.StatusErr, err.Error()
	}
	if !ok {
		return protocol.StatusNil, ""
	}
	return protocol.StatusOK, formatValue(value)
}

func (h *Handler) handleDelete(key string) (protocol.Status, string) {
	_, existed, err := h.db.Delete(key)
	if err != nil {
		return protocol.StatusErr, err.Error()
	}
	if !existed {
		return protocol.StatusNil, ""
	}
	return protocol.StatusOK, "ok"
}

func (h *Handler) handleList() (protocol.Status, string) {
	keys := h.db.Keys()
	if len(keys) == 0 {
		return protocol.StatusNil, ""
	}
	return protocol.StatusOK, "----- KEYS START -----\n" + strings.Join(keys, "\n") + "\n----- KEYS END -----"
}

func (h *Handler) handleCompact() (protocol.Status, string) {
	before, err := h.db.Bytesize()
	if err != nil {
		return protocol.StatusErr, err.Error()
	}
	if err := h.db.Compact(); err != nil {
		return protocol.StatusErr, err.Error()
	}
	after, err := h.db.Bytesize()
	if err != nil {
		return protocol.StatusErr, err.Error()
	}
	return protocol.StatusOK, fmt.Sprintf("%s -> %s", humanize.Bytes(uint64(before)), humanize.Bytes(uint64(after)))
}

func (h *Handler) handleInfo() (protocol.Status, string) {
	size, err := h.db.Bytesize()
	if err != nil {
		return protocol.StatusErr, err.Error()
	}

	writer := "ok"
	if fault := h.db.Fault(); fault != nil {
		writer = fault.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", h.db.Path())
	fmt.Fprintf(&b, "keys: %s\n", humanize.Comma(int64(h.db.Size())))
	fmt.Fprintf(&b, "records: %s\n", humanize.Comma(int64(h.db.Logsize())))
	fmt.Fprintf(&b, "size: %s (%d bytes)\n", humanize.IBytes(uint64(size)), size)
	fmt.Fprintf(&b, "writer: %s", writer)
	return protocol.StatusOK, b.String()
}

func done(err error) (protocol.Status, string) {
	if err != nil {
		return protocol.StatusErr, err.Error()
	}
	return protocol.StatusOK, "ok"
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	if b, err := json.Marshal(value); err == nil {
		return string(b)
	}
	return fmt.Sprint(value)
}

func reply(conn net.Conn, status protocol.Status, body string) error {
	encoded, err := protocol.EncodeResponse(status, body)
	if err != nil {
		encoded, _ = protocol.EncodeResponse(protocol.StatusErr, err.Error())
	}
	_, err = conn.Write(encoded)
	return err
}

const helpText = `
Available Commands:

PING
  Check if the server is alive.
  Response: PONG!

SET <key> <value>
  Store a value for the given key.
  Overwrites the value if the key already exists.
  Response: ok

GET <key>
  Retrieve the value associated with the key.
  Response: value | nil

DELETE <key>
  Delete the key and its value.
  Response: ok | nil

EXISTS <key>
  Check if a key exists.
  Response: true | false

COUNT
  Return the total number of keys stored.
  Response: integer

LIST
  List all stored keys.
  Response: list of keys | nil

FLUSH
  Wait until every write is on disk.
  Response: ok

LOAD
  Reload the database from its journal.
  Response: ok

COMPACT
  Rewrite the journal with only the live keys.
  Response: size before -> size after

CLEAR
  Remove every key.
  Response: ok

BYTESIZE
  Size of the journal file in bytes.
  Response: integer

LOGSIZE
  Number of records in the journal.
  Response: integer

INFO
  Database file, key and record counts, size and writer state.

HELP
  Show this help message.

EXIT (cli only)
  Close the client connection.
`
