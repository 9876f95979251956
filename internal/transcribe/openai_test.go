package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newOpenAITestServer(t *testing.T, h http.HandlerFunc) (*OpenAIClient, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	return NewOpenAIClient("sk-test", srv.URL+"/v1", "", "", 5*time.Second), srv.Close
}

func TestOpenAIClient_Transcribe(t *testing.T) {
	var gotFormat, gotModel, gotFilename string
	c, done := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotFormat = r.FormValue("response_format")
		gotModel = r.FormValue("model")
		gotFilename = r.MultipartForm.File["file"][0].Filename
		w.Header().Set("Content-Type", "text/vtt")
		io.WriteString(w, sampleVTT)
	})
	defer done()

	vtt, err := c.Transcribe(context.Background(), Request{Filename: "clip.mp4", Audio: strings.NewReader("audio")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if vtt != sampleVTT {
		t.Errorf("vtt = %q", vtt)
	}
	if gotFormat != "vtt" || gotModel != "whisper-1" || gotFilename != "clip.mp4" {
		t.Errorf("request format=%q model=%q filename=%q", gotFormat, gotModel, gotFilename)
	}
	if c.Name() != "openai" || c.Model() != "whisper-1" {
		t.Errorf("Name/Model = %s/%s", c.Name(), c.Model())
	}
}

func TestOpenAIClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{"rate_limited", 429, `{"error":{"message":"Rate limit reached for requests","type":"requests","code":"rate_limit_exceeded"}}`, KindRateLimited, "Rate limit reached for requests"},
		{"unauthorized", 401, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`, KindUnauthorized, "Incorrect API key provided"},
		{"upstream_json", 400, `{"error":{"message":"Invalid file format.","type":"invalid_request_error"}}`, KindUpstream, "Invalid file format."},
		{"upstream_non_json", 502, `<html>bad gateway</html>`, KindUpstream, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, done := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			defer done()

			_, err := c.Transcribe(context.Background(), Request{Filename: "a.mp3", Audio: strings.NewReader("x")})
			var te *Error
			if !errors.As(err, &te) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if te.Kind != tt.kind || te.Status != tt.status {
				t.Errorf("got %s/%d, want %s/%d", te.Kind, te.Status, tt.kind, tt.status)
			}
			if tt.message != "" && te.Message != tt.message {
				t.Errorf("Message = %q, want %q", te.Message, tt.message)
			}
		})
	}
}

func TestOpenAIClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewOpenAIClient("sk-test", url+"/v1", "", "", time.Second)
	_, err := c.Transcribe(context.Background(), Request{Filename: "a.mp3", Audio: strings.NewReader("x")})
	if KindOf(err) != KindUnavailable {
		t.Errorf("kind = %s, want unavailable (err=%v)", KindOf(err), err)
	}
}

func TestOpenAIClient_Ping(t *testing.T) {
	c, done := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[{"id":"whisper-1","object":"model"}]}`)
	})
	defer done()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
