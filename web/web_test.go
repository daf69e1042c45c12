package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-pantry/controller"
	"github.com/nvr-ai/go-pantry/history"
	"github.com/nvr-ai/go-pantry/inventory"
)

type stubHistory struct {
	exports []history.Export
	err     error
	limit   int
}

func (s *stubHistory) Recent(ctx context.Context, limit int) ([]history.Export, error) {
	s.limit = limit
	return s.exports, s.err
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func startHubWithKeepalive(t *testing.T, readDeadline, writeWait time.Duration) *Hub {
	t.Helper()
	hub := NewHub(nil)
	hub.setKeepalive(readDeadline, writeWait)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

// readLoop reads until the connection fails and forwards the first label of
// every rows message. Reading also answers pings.
func readLoop(conn *websocket.Conn) <-chan string {
	labels := make(chan string, 4096)
	go func() {
		defer close(labels)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg Message
			if json.Unmarshal(data, &msg) != nil || msg.Type != MessageRows || len(msg.Rows) == 0 {
				continue
			}
			select {
			case labels <- msg.Rows[0].Label:
			default:
			}
		}
	}()
	return labels
}

func waitForLabel(t *testing.T, labels <-chan string, label string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got, ok := <-labels:
			require.True(t, ok, "viewer connection closed")
			if got == label {
				return
			}
		case <-timeout:
			t.Fatalf("no rows for %q", label)
		}
	}
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestViewerReceivesSnapshotAndUpdates(t *testing.T) {
	hub := startHub(t)
	hub.Render([]inventory.Row{{Label: "apple", Detected: 3, Quantity: "3"}})

	server := httptest.NewServer(NewHandler(ServerOptions{Hub: hub}))
	defer server.Close()

	require.Eventually(t, func() bool { return len(hub.broadcast) == 0 }, time.Second, 10*time.Millisecond)

	conn := dial(t, server)

	snapshot := readMessage(t, conn)
	assert.Equal(t, MessageRows, snapshot.Type)
	require.Len(t, snapshot.Rows, 1)
	assert.Equal(t, "apple", snapshot.Rows[0].Label)

	hub.Render([]inventory.Row{
		{Label: "apple", Detected: 3, Quantity: "4"},
		{Label: "banana", Detected: 1, Quantity: "1"},
	})
	update := readMessage(t, conn)
	assert.Equal(t, MessageRows, update.Type)
	require.Len(t, update.Rows, 2)
	assert.Equal(t, "4", update.Rows[0].Quantity)

	hub.Notify(controller.Status{
		Command: controller.CommandExport,
		Message: controller.MsgNothingToCopy,
		Err:     controller.ErrNothingToExport,
	})
	status := readMessage(t, conn)
	assert.Equal(t, MessageStatus, status.Type)
	require.NotNil(t, status.Status)
	assert.Equal(t, controller.MsgNothingToCopy, status.Status.Message)
	assert.Contains(t, status.Error, controller.ErrNothingToExport.Error())
}

func TestViewerDisconnectUnregisters(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(NewHandler(ServerOptions{Hub: hub}))
	defer server.Close()

	conn := dial(t, server)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestInventoryEndpoint(t *testing.T) {
	hub := NewHub(nil)
	hub.Render([]inventory.Row{{Label: "milk", Detected: 2, Quantity: "2"}})

	rec := httptest.NewRecorder()
	NewHandler(ServerOptions{Hub: hub}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var rows []inventory.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Equal(t, []inventory.Row{{Label: "milk", Detected: 2, Quantity: "2"}}, rows)
}

func TestHealthcheckAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pantry_events_total 1\n")
	})
	handler := NewHandler(ServerOptions{Hub: NewHub(nil), Metrics: metrics})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pantry_events_total")
}

func TestHistoryEndpoint(t *testing.T) {
	reader := &stubHistory{exports: []history.Export{{ID: 7, Text: "apple: 3", Items: 3}}}
	handler := NewHandler(ServerOptions{Hub: NewHub(nil), History: reader})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?n=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, reader.limit)

	var exports []history.Export
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exports))
	require.Len(t, exports, 1)
	assert.Equal(t, "apple: 3", exports[0].Text)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?n=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	reader.err = errors.New("disk gone")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 20, reader.limit)
}

func TestHistoryRouteAbsentWithoutStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(ServerOptions{Hub: NewHub(nil)}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIdleViewerStaysConnected(t *testing.T) {
	hub := startHubWithKeepalive(t, 300*time.Millisecond, time.Second)
	server := httptest.NewServer(NewHandler(ServerOptions{Hub: hub}))
	defer server.Close()

	conn := dial(t, server)
	labels := readLoop(conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(time.Second)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Render([]inventory.Row{{Label: "apple", Detected: 1, Quantity: "1"}})
	waitForLabel(t, labels, "apple")
}

func TestStalledViewerIsDropped(t *testing.T) {
	hub := startHubWithKeepalive(t, time.Minute, 200*time.Millisecond)
	server := httptest.NewServer(NewHandler(ServerOptions{Hub: hub}))
	defer server.Close()

	// Never reads, so its socket buffers eventually fill up.
	dial(t, server)
	active := readLoop(dial(t, server))
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	bulk := make([]inventory.Row, 5000)
	for i := range bulk {
		bulk[i] = inventory.Row{Label: fmt.Sprintf("item-%04d", i), Detected: 1, Quantity: "1"}
	}
	deadline := time.Now().Add(20 * time.Second)
	for hub.ClientCount() > 1 && time.Now().Before(deadline) {
		hub.Render(bulk)
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, hub.ClientCount())

	hub.Render([]inventory.Row{{Label: "done", Detected: 1, Quantity: "1"}})
	waitForLabel(t, active, "done")
}
