package scan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vtt-batch/internal/runlog"
	"github.com/snarg/vtt-batch/internal/storage"
	"github.com/snarg/vtt-batch/internal/validate"
)

var now = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

func mp3Bytes(n int) []byte {
	b := make([]byte, n)
	copy(b, "ID3\x04\x00\x00\x00\x00\x00\x00")
	return b
}

// fakeSource yields objects in order, then fails with listErr (if set) once
// failAfter objects have been listed.
type fakeSource struct {
	objects   []storage.ObjectInfo
	data      map[string][]byte
	openErr   map[string]error
	failAfter int
	listErr   error
	opened    []string
}

func (f *fakeSource) Walk(ctx context.Context, fn func(storage.ObjectInfo) error) error {
	for i, obj := range f.objects {
		if f.listErr != nil && i == f.failAfter {
			return f.listErr
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
	if f.listErr != nil && f.failAfter >= len(f.objects) {
		return f.listErr
	}
	return nil
}

func (f *fakeSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.opened = append(f.opened, key)
	if err := f.openErr[key]; err != nil {
		return nil, err
	}
	d, ok := f.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func newScanner(src Source, maxSize int64) *Scanner {
	v := validate.New(validate.Options{
		MaxSize:    maxSize,
		Extensions: []string{".mp3", ".mp4"},
		MIMETypes:  []string{"audio/mpeg", "video/mp4"},
	})
	s := New(src, v, time.Hour, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func obj(key string, age time.Duration) storage.ObjectInfo {
	return storage.ObjectInfo{Key: key, LastModified: now.Add(-age), Size: 64}
}

func keys(cs []Candidate) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.Key)
	}
	return out
}

func readLog(t *testing.T, rl *runlog.Log) string {
	t.Helper()
	b, err := os.ReadFile(rl.Path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatal(err)
	}
	return string(b)
}

func setup(t *testing.T) (string, *runlog.Log) {
	dir := t.TempDir()
	return dir, runlog.New(filepath.Join(t.TempDir(), "log.txt"), zerolog.Nop())
}

func TestScan_RecencyWindowAndExtension(t *testing.T) {
	src := &fakeSource{
		objects: []storage.ObjectInfo{
			obj("fresh.mp3", 10*time.Minute),
			obj("boundary.mp3", time.Hour),          // exactly at cutoff: included
			obj("stale.mp3", time.Hour+time.Second), // one second outside: excluded
			obj("future.mp3", -5*time.Minute),       // clock skew: included
			obj("notes.txt", time.Minute),           // extension not allowed
			obj("upper/CASE.MP3", time.Minute),      // extension match is case-insensitive
		},
		data: map[string][]byte{},
	}
	for _, o := range src.objects {
		src.data[o.Key] = mp3Bytes(64)
	}

	dir, rl := setup(t)
	got, err := newScanner(src, 1024).Scan(context.Background(), dir, rl)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"fresh.mp3", "boundary.mp3", "future.mp3", "upper/CASE.MP3"}
	if strings.Join(keys(got), ",") != strings.Join(want, ",") {
		t.Errorf("candidates = %v, want %v", keys(got), want)
	}
	for _, k := range src.opened {
		if k == "stale.mp3" || k == "notes.txt" {
			t.Errorf("filtered object %s was downloaded", k)
		}
	}
	for _, c := range got {
		if filepath.Dir(c.LocalPath) != dir {
			t.Errorf("%s downloaded outside scratch dir: %s", c.Key, c.LocalPath)
		}
		if _, err := os.Stat(c.LocalPath); err != nil {
			t.Errorf("candidate file missing: %v", err)
		}
	}
}

func TestScan_DeduplicatesKeys(t *testing.T) {
	src := &fakeSource{
		objects: []storage.ObjectInfo{obj("a.mp3", time.Minute), obj("a.mp3", time.Minute), obj("b.mp3", time.Minute)},
		data:    map[string][]byte{"a.mp3": mp3Bytes(32), "b.mp3": mp3Bytes(32)},
	}
	dir, rl := setup(t)
	got, err := newScanner(src, 1024).Scan(context.Background(), dir, rl)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Key != "a.mp3" || got[1].Key != "b.mp3" {
		t.Errorf("candidates = %v", keys(got))
	}
	if len(src.opened) != 2 {
		t.Errorf("opened %v, want each key once", src.opened)
	}
}

func TestScan_ValidationFailuresAreLoggedAndCleaned(t *testing.T) {
	src := &fakeSource{
		objects: []storage.ObjectInfo{
			obj("spoofed.mp3", time.Minute),
			obj("big.mp3", time.Minute),
			obj("exact.mp3", time.Minute),
			obj("../../etc/passwd.mp3", time.Minute),
		},
		data: map[string][]byte{
			"spoofed.mp3":          []byte("#!/bin/sh\necho not audio\n"),
			"big.mp3":              mp3Bytes(101),
			"exact.mp3":            mp3Bytes(100),
			"../../etc/passwd.mp3": mp3Bytes(10),
		},
	}
	dir, rl := setup(t)
	got, err := newScanner(src, 100).Scan(context.Background(), dir, rl)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(keys(got), ",") != "exact.mp3,../../etc/passwd.mp3" {
		t.Errorf("candidates = %v", keys(got))
	}
	for _, c := range got {
		base := filepath.Base(c.LocalPath)
		if strings.ContainsAny(base, `/\`) || filepath.Dir(c.LocalPath) != dir {
			t.Errorf("unsafe local path %s", c.LocalPath)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("scratch dir has %d files, want 2 (rejected downloads removed)", len(entries))
	}

	log := readLog(t, rl)
	for _, want := range []string{
		"Filename: spoofed.mp3\nProcessing Status: Failed\nError: file type is not accepted",
		"Filename: big.mp3\nProcessing Status: Failed\nError: file size exceeds the limit of 100 bytes",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("run log missing %q:\n%s", want, log)
		}
	}
	if strings.Contains(log, "exact.mp3") {
		t.Error("accepted file should not be logged by the scanner")
	}
}

func TestScan_DownloadFailureContinues(t *testing.T) {
	src := &fakeSource{
		objects: []storage.ObjectInfo{obj("a.mp3", time.Minute), obj("gone.mp3", time.Minute), obj("c.mp3", time.Minute)},
		data:    map[string][]byte{"a.mp3": mp3Bytes(16), "c.mp3": mp3Bytes(16)},
		openErr: map[string]error{"gone.mp3": errors.New("connection reset")},
	}
	dir, rl := setup(t)
	got, err := newScanner(src, 1024).Scan(context.Background(), dir, rl)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(keys(got), ",") != "a.mp3,c.mp3" {
		t.Errorf("candidates = %v", keys(got))
	}
	if log := readLog(t, rl); !strings.Contains(log, "Filename: gone.mp3\nProcessing Status: Failed\nError: download gone.mp3: connection reset") {
		t.Errorf("run log:\n%s", log)
	}
}

func TestScan_ListingFailureAfterPartialListing(t *testing.T) {
	boom := errors.New("throttled")
	src := &fakeSource{
		objects:   []storage.ObjectInfo{obj("a.mp3", time.Minute), obj("b.mp3", time.Minute), obj("c.mp3", time.Minute)},
		data:      map[string][]byte{"a.mp3": mp3Bytes(16), "b.mp3": mp3Bytes(16), "c.mp3": mp3Bytes(16)},
		failAfter: 2,
		listErr:   boom,
	}
	dir, rl := setup(t)
	got, err := newScanner(src, 1024).Scan(context.Background(), dir, rl)

	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "list" || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want list IOError wrapping %v", err, boom)
	}
	if strings.Join(keys(got), ",") != "a.mp3,b.mp3" {
		t.Errorf("candidates = %v, want objects listed before the failure", keys(got))
	}
	if log := readLog(t, rl); !strings.Contains(log, "Listing failed after 2 matching objects: throttled") {
		t.Errorf("run log:\n%s", log)
	}
}

func TestScan_LocalStore(t *testing.T) {
	bucket := t.TempDir()
	if err := os.MkdirAll(filepath.Join(bucket, "lectures"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(bucket, "lectures", "week 1.mp3"), mp3Bytes(64), 0o644)
	os.WriteFile(filepath.Join(bucket, "readme.txt"), []byte("hi"), 0o644)

	dir, rl := setup(t)
	s := newScanner(storage.NewLocalStore(bucket), 1024)
	s.now = time.Now
	got, err := s.Scan(context.Background(), dir, rl)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != "lectures/week 1.mp3" {
		t.Fatalf("candidates = %v", keys(got))
	}
	if !strings.HasSuffix(got[0].LocalPath, "-week_1.mp3") {
		t.Errorf("local path %s should end with the sanitized name", got[0].LocalPath)
	}
}
