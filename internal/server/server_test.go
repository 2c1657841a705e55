package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fbmirror-go/internal/config"
	"fbmirror-go/internal/framebuf"
)

func TestHandleConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Source = "sim"
	cfg.TargetFPS = 50
	srv := &Server{cfg: cfg, pair: framebuf.NewPair(4, 2)}

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if payload["source"].(string) != "sim" {
		t.Fatalf("unexpected source: %v", payload["source"])
	}
	if payload["width"].(float64) != 4 {
		t.Fatalf("unexpected width: %v", payload["width"])
	}
	if payload["height"].(float64) != 2 {
		t.Fatalf("unexpected height: %v", payload["height"])
	}
	if payload["target_fps"].(float64) != 50 {
		t.Fatalf("unexpected target_fps: %v", payload["target_fps"])
	}
	if payload["format"].(string) != "rgb565" {
		t.Fatalf("unexpected format: %v", payload["format"])
	}
}

func TestHandleFrame(t *testing.T) {
	pair := framebuf.NewPair(2, 2)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	copy(pair.Staging(), want)
	pair.Promote(time.Unix(42, 0))

	srv := &Server{cfg: config.Default(), pair: pair}

	req := httptest.NewRequest("GET", "/frame", nil)
	rec := httptest.NewRecorder()
	srv.handleFrame(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), want) {
		t.Fatalf("frame body = %v, want %v", rec.Body.Bytes(), want)
	}
	if got := rec.Header().Get("X-Frame-Seq"); got != "1" {
		t.Fatalf("seq header = %q, want 1", got)
	}
	if got := rec.Header().Get("X-Frame-Width"); got != "2" {
		t.Fatalf("width header = %q, want 2", got)
	}
	if got := rec.Header().Get("X-Frame-Height"); got != "2" {
		t.Fatalf("height header = %q, want 2", got)
	}
}

func TestHandleFrameBeforeFirstPublish(t *testing.T) {
	srv := &Server{cfg: config.Default(), pair: framebuf.NewPair(2, 1)}

	req := httptest.NewRequest("GET", "/frame", nil)
	rec := httptest.NewRecorder()
	srv.handleFrame(rec, req)

	if got := rec.Header().Get("X-Frame-Seq"); got != "0" {
		t.Fatalf("seq header = %q, want 0", got)
	}
	if len(rec.Body.Bytes()) != 4 {
		t.Fatalf("body size = %d, want 4", len(rec.Body.Bytes()))
	}
}

func TestHandleStatusAddsClientCount(t *testing.T) {
	srv := &Server{
		cfg:  config.Default(),
		pair: framebuf.NewPair(1, 1),
		statusFn: func() map[string]any {
			return map[string]any{
				"source":  "sim",
				"metrics": map[string]any{"polls": uint64(7)},
			}
		},
	}

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	metrics, ok := payload["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("missing metrics payload: %v", payload)
	}
	if metrics["ws_clients"].(float64) != 0 {
		t.Fatalf("unexpected ws_clients: %v", metrics["ws_clients"])
	}
	if metrics["polls"].(float64) != 7 {
		t.Fatalf("unexpected polls: %v", metrics["polls"])
	}
}

func TestWebsocketDeliversPublishEvents(t *testing.T) {
	cfg := config.Default()
	cfg.Source = "sim"
	srv := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		cfg:      cfg,
		pair:     framebuf.NewPair(2, 2),
		statusFn: func() map[string]any {
			return map[string]any{"source": "sim"}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan any, 1)
	go srv.broadcast(ctx, events)

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello map[string]any
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read config payload: %v", err)
	}
	if hello["type"] != "config" {
		t.Fatalf("first message type = %v, want config", hello["type"])
	}
	if hello["width"].(float64) != 2 {
		t.Fatalf("config width = %v, want 2", hello["width"])
	}

	events <- map[string]any{"type": "frame", "seq": uint64(3)}

	var event map[string]any
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read frame event: %v", err)
	}
	if event["type"] != "frame" {
		t.Fatalf("event type = %v, want frame", event["type"])
	}
	if event["seq"].(float64) != 3 {
		t.Fatalf("event seq = %v, want 3", event["seq"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "status_request"}); err != nil {
		t.Fatalf("write status request: %v", err)
	}
	var status map[string]any
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status reply: %v", err)
	}
	if status["type"] != "status" {
		t.Fatalf("status type = %v, want status", status["type"])
	}
	if status["source"] != "sim" {
		t.Fatalf("status source = %v, want sim", status["source"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv := &Server{cfg: config.Default(), pair: framebuf.NewPair(1, 1)}

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}
