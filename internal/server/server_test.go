package server_test

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/go-daybreak/core"
	"github.com/0xRadioAc7iv/go-daybreak/daybreak"
	"github.com/0xRadioAc7iv/go-daybreak/internal/protocol"
	"github.com/0xRadioAc7iv/go-daybreak/internal/server"
)

func startServer(t *testing.T, path string) (*core.DB, int) {
	t.Helper()

	db, err := core.Open(path)
	require.NoError(t, err)

	ln, err := server.Listen("127.0.0.1", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	handler := server.NewHandler(db, zap.NewNop().Sugar())
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(ctx, ln, zap.NewNop().Sugar(), handler.ServeConn)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-served)
		require.NoError(t, db.Close())
	})

	return db, ln.Addr().(*net.TCPAddr).Port
}

func connectClient(t *testing.T, port int) *daybreak.Client {
	t.Helper()

	client, err := daybreak.Connect(
		daybreak.WithHost("127.0.0.1"),
		daybreak.WithPort(port),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestServerSetGet(t *testing.T) {
	_, port := startServer(t, filepath.Join(t.TempDir(), "test.db"))
	client := connectClient(t, port)

	require.NoError(t, client.Set("foo", "bar"))

	val, err := client.Get("foo")
	require.NoError(t, err)
	require.Equal(t, "bar", val)

	_, err = client.Get("missing")
	require.ErrorIs(t, err, daybreak.ErrNotFound)
}

func TestServerDelete(t *testing.T) {
	_, port := startServer(t, filepath.Join(t.TempDir(), "test.db"))
	client := connectClient(t, port)

	require.NoError(t, client.Set("a", "1"))
	require.NoError(t, client.Delete("a"))
	require.ErrorIs(t, client.Delete("a"), daybreak.ErrNotFound)

	_, err := client.Get("a")
	require.ErrorIs(t, err, daybreak.ErrNotFound)
}

func TestServerExistsCountList(t *testing.T) {
	_, port := startServer(t, filepath.Join(t.TempDir(), "test.db"))
	client := connectClient(t, port)

	keys, err := client.List()
	require.NoError(t, err)
	require.Empty(t, keys)

	require.NoError(t, client.Set("a", "1"))
	require.NoError(t, client.Set("b", "2"))

	ok, err := client.Exists("a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.Exists("z")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := client.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	keys, err = client.List()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestServerCompactAndClear(t *testing.T) {
	db, port := startServer(t, filepath.Join(t.TempDir(), "test.db"))
	client := connectClient(t, port)

	for i := 0; i < 10; i++ {
		require.NoError(t, client.Set("k", strings.Repeat("x", i)))
	}
	require.NoError(t, client.Flush())
	require.Equal(t, 10, db.Logsize())

	summary, err := client.Compact()
	require.NoError(t, err)
	require.Contains(t, summary, "->")
	require.Equal(t, 1, db.Logsize())

	require.NoError(t, client.Clear())
	n, err := client.Count()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestServerInfo(t *testing.T) {
	_, port := startServer(t, filepath.Join(t.TempDir(), "test.db"))
	client := connectClient(t, port)

	require.NoError(t, client.Set("a", "1"))
	require.NoError(t, client.Flush())

	info, err := client.Info()
	require.NoError(t, err)
	require.Contains(t, info, "keys: 1")
	require.Contains(t, info, "writer: ok")
}

func TestServerUnknownCommand(t *testing.T) {
	_, port := startServer(t, filepath.Join(t.TempDir(), "test.db"))
	client := connectClient(t, port)

	out, err := client.Execute("bogus", "", "")
	require.NoError(t, err)
	require.Equal(t, "(error) Invalid Command", out)

	out, err = client.Execute("get", "nope", "")
	require.NoError(t, err)
	require.Equal(t, "nil", out)
}

func TestServerPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := core.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SetFlush("persist", "yes"))
	require.NoError(t, db.Close())

	_, port := startServer(t, path)
	client := connectClient(t, port)

	val, err := client.Get("persist")
	require.NoError(t, err)
	require.Equal(t, "yes", val)
}

func TestHandleStatuses(t *testing.T) {
	db, err := core.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	h := server.NewHandler(db, nil)

	status, body := h.Handle(&protocol.Command{Cmd: "PING"})
	require.Equal(t, protocol.StatusOK, status)
	require.Equal(t, "PONG!", body)

	status, _ = h.Handle(&protocol.Command{Cmd: "set"})
	require.Equal(t, protocol.StatusErr, status)

	status, _ = h.Handle(&protocol.Command{Cmd: "delete", Key: "missing"})
	require.Equal(t, protocol.StatusNil, status)

	require.NoError(t, db.Set("gone", "soon"))
	status, body = h.Handle(&protocol.Command{Cmd: "delete", Key: "gone"})
	require.Equal(t, protocol.StatusOK, status)
	require.Equal(t, "ok", body)
	status, _ = h.Handle(&protocol.Command{Cmd: "delete", Key: "gone"})
	require.Equal(t, protocol.StatusNil, status)

	require.NoError(t, db.Set("n", map[string]any{"a": 1}))
	status, body = h.Handle(&protocol.Command{Cmd: "get", Key: "n"})
	require.Equal(t, protocol.StatusOK, status)
	require.Equal(t, `{"a":1}`, body)
}

func TestListenSkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	port := busy.Addr().(*net.TCPAddr).Port
	ln, err := server.Listen("127.0.0.1", port)
	require.NoError(t, err)
	defer ln.Close()
	require.NotEqual(t, port, ln.Addr().(*net.TCPAddr).Port)
}
