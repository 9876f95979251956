// Package scan finds recent media objects in a bucket, downloads them to a
// run workspace and keeps the ones that pass validation.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vtt-batch/internal/metrics"
	"github.com/snarg/vtt-batch/internal/runlog"
	"github.com/snarg/vtt-batch/internal/storage"
	"github.com/snarg/vtt-batch/internal/validate"
)

// Source is the part of storage.Bucket the scanner reads from.
type Source interface {
	Walk(ctx context.Context, fn func(storage.ObjectInfo) error) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Candidate is a validated object downloaded for this run.
type Candidate struct {
	Key          string
	LastModified time.Time
	LocalPath    string
}

// IOError is a listing or download failure.
type IOError struct {
	Op  string // "list", "download"
	Key string
	Err error
}

func (e *IOError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Scanner selects candidates from a Source.
type Scanner struct {
	src       Source
	validator *validate.Validator
	window    time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a scanner that considers objects modified within window of now.
func New(src Source, validator *validate.Validator, window time.Duration, log zerolog.Logger) *Scanner {
	return &Scanner{
		src:       src,
		validator: validator,
		window:    window,
		log:       log,
		now:       time.Now,
	}
}

// Scan lists the source, downloads each recent object with an allowed
// extension into dir and validates it. Objects that fail to download or
// validate are written to rl and skipped.
//
// The returned candidates are usable even when err is non-nil: a listing
// failure stops the walk, but whatever was listed before it is still
// downloaded and returned, along with an *IOError describing the failure.
func (s *Scanner) Scan(ctx context.Context, dir string, rl *runlog.Log) ([]Candidate, error) {
	cutoff := s.now().UTC().Add(-s.window)
	seen := make(map[string]bool)
	var matched []storage.ObjectInfo

	walkErr := s.src.Walk(ctx, func(obj storage.ObjectInfo) error {
		if seen[obj.Key] {
			return nil
		}
		if !s.validator.AllowsExtension(obj.Key) || obj.LastModified.Before(cutoff) {
			return nil
		}
		seen[obj.Key] = true
		matched = append(matched, obj)
		return nil
	})

	var listErr error
	if walkErr != nil {
		listErr = &IOError{Op: "list", Err: walkErr}
		s.log.Error().Err(walkErr).Int("listed", len(matched)).Msg("bucket listing failed")
		rl.Writef("Listing failed after %d matching objects: %v", len(matched), walkErr)
	}

	candidates := make([]Candidate, 0, len(matched))
	for _, obj := range matched {
		c, err := s.fetch(ctx, obj, dir)
		if err != nil {
			result := "invalid"
			if !errors.Is(err, validate.ErrInvalidFile) {
				result = "io_error"
			}
			metrics.FilesScannedTotal.WithLabelValues(result).Inc()
			s.log.Warn().Err(err).Str("key", obj.Key).Msg("skipping object")
			rl.Writef("Filename: %s\nProcessing Status: Failed\nError: %v\n", obj.Key, err)
			continue
		}
		metrics.FilesScannedTotal.WithLabelValues("accepted").Inc()
		candidates = append(candidates, c)
	}

	s.log.Info().
		Int("matched", len(matched)).
		Int("accepted", len(candidates)).
		Time("cutoff", cutoff).
		Msg("scan complete")
	return candidates, listErr
}

// fetch downloads obj into a new file under dir and validates it. The file is
// removed on any failure.
func (s *Scanner) fetch(ctx context.Context, obj storage.ObjectInfo, dir string) (Candidate, error) {
	name := validate.SanitizeFilename(obj.Key)

	rc, err := s.src.Open(ctx, obj.Key)
	if err != nil {
		return Candidate{}, &IOError{Op: "download", Key: obj.Key, Err: err}
	}
	defer rc.Close()

	// One byte past the limit is enough for the size check to fail.
	data, err := io.ReadAll(io.LimitReader(rc, s.validator.MaxSize()+1))
	if err != nil {
		return Candidate{}, &IOError{Op: "download", Key: obj.Key, Err: err}
	}

	f, err := os.CreateTemp(dir, "*-"+name)
	if err != nil {
		return Candidate{}, &IOError{Op: "download", Key: obj.Key, Err: err}
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return Candidate{}, &IOError{Op: "download", Key: obj.Key, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Candidate{}, &IOError{Op: "download", Key: obj.Key, Err: err}
	}

	if err := s.validator.Validate(name, data); err != nil {
		os.Remove(path)
		return Candidate{}, err
	}
	return Candidate{Key: obj.Key, LastModified: obj.LastModified, LocalPath: path}, nil
}
