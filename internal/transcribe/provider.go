package transcribe

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
)

// Provider is the interface for hosted speech-to-text backends.
type Provider interface {
	// Transcribe returns WebVTT subtitle text for the audio in req.
	// Failures are returned as *Error.
	Transcribe(ctx context.Context, req Request) (string, error)
	// Ping checks that the API is reachable and the credential is accepted.
	Ping(ctx context.Context) error
	Name() string  // "openai", "whisper"
	Model() string // model identifier for logs
}

// Request is one audio file to transcribe.
type Request struct {
	Filename    string // original file name; the API infers the format from its extension
	ContentType string
	Audio       io.Reader
}

var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".mpga": "audio/mpeg",
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".webm": "video/webm",
	".mpeg": "video/mpeg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// ContentTypeFor infers a media type from the file extension.
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
