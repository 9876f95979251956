package transcribe

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vtt-batch/internal/metrics"
	"github.com/snarg/vtt-batch/internal/validate"
)

// Worker turns one local media file into a local .vtt file. It performs a
// single attempt; retry policy belongs to the caller.
type Worker struct {
	provider Provider
	log      zerolog.Logger
}

// NewWorker creates a worker backed by provider.
func NewWorker(provider Provider, log zerolog.Logger) *Worker {
	return &Worker{provider: provider, log: log}
}

// Transcribe sends localPath to the provider, naming it after remoteKey, and
// writes the returned subtitles to outDir/<base>.vtt. Every failure is an *Error.
func (w *Worker) Transcribe(ctx context.Context, localPath, remoteKey, outDir string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", &Error{Kind: KindUnexpected, Message: fmt.Sprintf("open media: %v", err), Err: err}
	}
	defer f.Close()

	filename := validate.SanitizeFilename(remoteKey)
	start := time.Now()
	vtt, err := w.provider.Transcribe(ctx, Request{
		Filename:    filename,
		ContentType: ContentTypeFor(filename),
		Audio:       f,
	})
	metrics.TranscriptionDuration.WithLabelValues(w.provider.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", asError(err)
	}

	out := filepath.Join(outDir, SubtitleName(remoteKey))
	if err := os.WriteFile(out, []byte(vtt), 0o644); err != nil {
		return "", &Error{Kind: KindUnexpected, Message: fmt.Sprintf("write subtitles: %v", err), Err: err}
	}

	w.log.Debug().
		Str("key", remoteKey).
		Str("vtt", out).
		Int("bytes", len(vtt)).
		Dur("duration", time.Since(start)).
		Msg("transcription complete")
	return out, nil
}

// SubtitleName maps an object key to its subtitle file name by dropping the
// directory part and the extension: "media/my clip.mp4" becomes "my clip.vtt".
func SubtitleName(remoteKey string) string {
	base := remoteKey
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." {
		stem = "subtitle"
	}
	return stem + ".vtt"
}
