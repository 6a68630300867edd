package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/setsuna-project/setsuna/internal/engine"
	"github.com/setsuna-project/setsuna/internal/observe"
	ttsmock "github.com/setsuna-project/setsuna/pkg/provider/tts/mock"
)

func writeSessionFixture(t *testing.T, dataDir string, st engine.Status) {
	t.Helper()
	dir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, st.ID+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T, events <-chan engine.Event) (*Server, *httptest.Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	s := NewServer(Config{Addr: ":0", DataDir: dataDir}, events, nil, nil, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv, dataDir
}

func TestSessions_IndexAndDetail(t *testing.T) {
	_, srv, dataDir := newTestServer(t, nil)

	writeSessionFixture(t, dataDir, engine.Status{
		ID:    "session_20260301_100000_ab12",
		Theme: "AI音楽生成技術調査",
		State: engine.StateFinished,
		Items: 12,
	})

	resp, err := http.Get(srv.URL + "/sessions")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/sessions status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "session_20260301_100000_ab12") {
		t.Errorf("index missing session id:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/sessions/session_20260301_100000_ab12")
	if err != nil {
		t.Fatalf("GET /sessions/{id}: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/sessions/{id} status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "AI音楽生成技術調査") {
		t.Errorf("report missing theme:\n%s", body)
	}
}

func TestSessions_UnknownID(t *testing.T) {
	_, srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/sessions/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	_, srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
}

func TestEvents_StreamsOverWebsocket(t *testing.T) {
	events := make(chan engine.Event, 1)
	s, srv, _ := newTestServer(t, events)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.hub.run(ctx)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Wait until the handler has registered its subscription.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.hub.mu.Lock()
		n := len(s.hub.subs)
		s.hub.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	events <- engine.Event{Type: engine.EventStored, SessionID: "session_x", Detail: "3 items"}

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("websocket read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v", typ)
	}
	var ev engine.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != engine.EventStored || ev.SessionID != "session_x" {
		t.Errorf("event = %+v", ev)
	}
}

func TestSpeak(t *testing.T) {
	synth := &ttsmock.Provider{SynthesizeAudio: []byte("RIFFfakewav")}
	s := NewServer(Config{Addr: ":0", DataDir: t.TempDir()}, nil, nil, nil, synth)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/speak", "application/json",
		strings.NewReader(`{"text":"こんにちは"}`))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/speak status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q", ct)
	}
	if string(body) != "RIFFfakewav" {
		t.Errorf("body = %q", body)
	}
	calls := synth.Calls()
	if len(calls) != 1 || calls[0].Text != "こんにちは" {
		t.Errorf("synth calls = %+v", calls)
	}

	// Missing text is rejected.
	resp, err = http.Post(srv.URL+"/speak", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty text status = %d", resp.StatusCode)
	}
}

func TestSpeak_NotConfigured(t *testing.T) {
	_, srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/speak", "application/json",
		strings.NewReader(`{"text":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestHub_DropsSlowSubscribers(t *testing.T) {
	h := newHub(nil)
	sub := h.subscribe()
	defer h.unsubscribe(sub)

	// Overfill the queue; broadcast must not block.
	for i := 0; i < subscriberBuffer+5; i++ {
		h.broadcast(engine.Event{Type: engine.EventQuery})
	}
	if len(sub) != subscriberBuffer {
		t.Errorf("queue length = %d, want %d", len(sub), subscriberBuffer)
	}
}

func TestSpeak_RecordsSynthesisLatency(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	synth := &ttsmock.Provider{SynthesizeAudio: []byte("RIFFfakewav")}
	s := NewServer(Config{Addr: ":0", DataDir: t.TempDir()}, nil, nil, met, synth)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/speak", "application/json",
		strings.NewReader(`{"text":"こんにちは"}`))
	if err != nil {
		t.Fatalf("POST /speak: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var tts *metricdata.Metrics
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == "setsuna.tts.duration" {
				tts = &sm.Metrics[i]
			}
		}
	}
	if tts == nil {
		t.Fatal("setsuna.tts.duration was not recorded")
	}
	hist, ok := tts.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", tts.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 1 {
		t.Errorf("synthesis latency samples = %d, want 1", count)
	}
}
