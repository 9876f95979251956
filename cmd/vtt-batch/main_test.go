package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snarg/vtt-batch/internal/batch"
	"github.com/snarg/vtt-batch/internal/config"
	"github.com/snarg/vtt-batch/internal/transcribe"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "vtt-batch version dev\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRunCmd_EndToEnd(t *testing.T) {
	var calls int
	whisper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("response_format") != "vtt" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.WriteString(w, "WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nhi\n")
	}))
	defer whisper.Close()

	bucket := t.TempDir()
	scratch := t.TempDir()
	os.MkdirAll(filepath.Join(bucket, "lectures"), 0o755)
	media := make([]byte, 512)
	copy(media, "ID3\x04\x00\x00\x00\x00\x00\x00")
	os.WriteFile(filepath.Join(bucket, "lectures", "clip.mp3"), media, 0o644)
	os.WriteFile(filepath.Join(bucket, "notes.txt"), []byte("skip me"), 0o644)

	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("LOCAL_BUCKET_DIR", bucket)
	t.Setenv("TRANSCRIBE_PROVIDER", "whisper")
	t.Setenv("WHISPER_URL", whisper.URL+"/v1/audio/transcriptions")
	t.Setenv("RUN_TIMEZONE", "UTC")
	t.Setenv("TIME_WINDOW", "60")
	t.Setenv("BATCH_WORKERS", "1")

	out, err := execute(t, "run", "--env-file", filepath.Join(t.TempDir(), "none.env"), "--scratch-dir", scratch)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var res batch.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Status != batch.StatusSuccess || res.SuccessCount != 1 || calls != 1 {
		t.Fatalf("result = %+v (calls=%d)", res, calls)
	}

	vtt, err := os.ReadFile(filepath.Join(bucket, res.Prefix, "clip.vtt"))
	if err != nil || !strings.HasPrefix(string(vtt), "WEBVTT") {
		t.Errorf("uploaded subtitle = %q, %v", vtt, err)
	}
	log, err := os.ReadFile(filepath.Join(bucket, res.Prefix, "log.txt"))
	if err != nil || !strings.Contains(string(log), "Processing file: lectures/clip.mp3") {
		t.Errorf("uploaded log = %q, %v", log, err)
	}
	if entries, _ := os.ReadDir(scratch); len(entries) != 0 {
		t.Errorf("scratch dir not cleaned: %d entries", len(entries))
	}
	if _, err := os.Stat(filepath.Join(bucket, "lectures", "clip.mp3")); err != nil {
		t.Errorf("source media should be left in place: %v", err)
	}
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("TRANSCRIBE_PROVIDER", "bogus")
	if _, err := execute(t, "run", "--env-file", filepath.Join(t.TempDir(), "none.env")); err == nil {
		t.Fatal("expected config error")
	}
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{TranscribeProvider: "whisper", WhisperURL: "http://localhost:8000/v1/audio/transcriptions", TranscribeModel: "large-v3"}
	p := newProvider(cfg)
	if _, ok := p.(*transcribe.WhisperClient); !ok || p.Model() != "large-v3" {
		t.Errorf("whisper provider = %T %s", p, p.Model())
	}

	cfg = &config.Config{TranscribeProvider: "openai", TranscribeModel: "whisper-1"}
	if _, ok := newProvider(cfg).(*transcribe.OpenAIClient); !ok {
		t.Errorf("openai provider = %T", newProvider(cfg))
	}
}
