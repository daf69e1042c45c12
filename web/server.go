package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-pantry/history"
)

const (
	readLimit           = 512
	defaultReadDeadline = 60 * time.Second
	defaultWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HistoryReader lists archived exports.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Export, error)
}

// ServerOptions configures the feed server.
type ServerOptions struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	Hub  *Hub
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// History serves /history when set.
	History HistoryReader
	Logger  *zap.SugaredLogger
}

// NewHandler builds the feed routes:
//
//	GET /ws           live rows and statuses
//	GET /inventory    latest rows as JSON
//	GET /history?n=N  archived exports, newest first
//	GET /metrics      prometheus exposition
//	GET /healthcheck  liveness
func NewHandler(opts ServerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", viewerHandler(opts.Hub, logger))
	mux.HandleFunc("/inventory", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, opts.Hub.Rows(), logger)
	})
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	})
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	if opts.History != nil {
		mux.HandleFunc("/history", historyHandler(opts.History, logger))
	}
	return mux
}

// NewServer returns an http.Server for the feed routes.
func NewServer(opts ServerOptions) *http.Server {
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           NewHandler(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func viewerHandler(hub *Hub, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warnw("websocket upgrade failed", "error", err)
			return
		}
		connection.SetReadLimit(readLimit)
		connection.SetReadDeadline(time.Now().Add(hub.readDeadline))
		connection.SetPongHandler(func(string) error {
			return connection.SetReadDeadline(time.Now().Add(hub.readDeadline))
		})
		defer connection.Close()

		if !hub.Register(r.Context(), connection) {
			return
		}
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				logger.Debugw("viewer read ended", "error", err)
				return
			}
		}
	}
}

func historyHandler(reader HistoryReader, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("n"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid n"}, logger)
				return
			}
			limit = n
		}

		exports, err := reader.Recent(r.Context(), limit)
		if err != nil {
			logger.Errorw("failed to list exports", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"}, logger)
			return
		}
		if exports == nil {
			exports = []history.Export{}
		}
		writeJSON(w, http.StatusOK, exports, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("failed to write response", "error", err)
	}
}
