package voicevox_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/setsuna-project/setsuna/pkg/provider/tts/voicevox"
)

// fakeEngine stands in for a VOICEVOX engine and records what it was asked.
func fakeEngine(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/audio_query":
			if r.Method != http.MethodPost {
				t.Errorf("audio_query method = %s, want POST", r.Method)
			}
			if got := r.URL.Query().Get("text"); got != "テストです" {
				t.Errorf("audio_query text = %q, want %q", got, "テストです")
			}
			if got := r.URL.Query().Get("speaker"); got != "3" {
				t.Errorf("audio_query speaker = %q, want %q", got, "3")
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"accent_phrases":[],"speedScale":1.0,"pitchScale":0.0,"outputSamplingRate":24000}`))
		case "/synthesis":
			if got := r.URL.Query().Get("speaker"); got != "3" {
				t.Errorf("synthesis speaker = %q, want %q", got, "3")
			}
			var query map[string]any
			if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
				t.Errorf("synthesis body decode: %v", err)
			}
			if got, ok := query["speedScale"].(float64); !ok || got != 1.2 {
				t.Errorf("synthesis speedScale = %v, want 1.2", query["speedScale"])
			}
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write([]byte("RIFFfakewav"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestSynthesize_TwoStepRoundTrip(t *testing.T) {
	srv, paths := fakeEngine(t)

	p, err := voicevox.New(3,
		voicevox.WithBaseURL(srv.URL),
		voicevox.WithSpeedScale(1.2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wav, err := p.Synthesize(context.Background(), "テストです")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(wav, []byte("RIFFfakewav")) {
		t.Errorf("wav = %q, want %q", wav, "RIFFfakewav")
	}
	want := []string{"/audio_query", "/synthesis"}
	if len(*paths) != 2 || (*paths)[0] != want[0] || (*paths)[1] != want[1] {
		t.Errorf("request paths = %v, want %v", *paths, want)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := voicevox.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), ""); err == nil {
		t.Fatal("Synthesize(\"\") returned nil error")
	}
}

func TestSynthesize_AudioQueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "detail: invalid speaker", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p, err := voicevox.New(999, voicevox.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Synthesize(context.Background(), "こんにちは")
	if err == nil {
		t.Fatal("Synthesize returned nil error for 422 response")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("error = %v, want status code in message", err)
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/audio_query" {
			_, _ = w.Write([]byte(`{"speedScale":1.0}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := voicevox.New(1, voicevox.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "こんにちは"); err == nil {
		t.Fatal("Synthesize returned nil error for empty audio body")
	}
}

func TestNew_NegativeSpeaker(t *testing.T) {
	if _, err := voicevox.New(-1); err == nil {
		t.Fatal("New(-1) returned nil error")
	}
}
