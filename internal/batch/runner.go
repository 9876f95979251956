// Package batch runs one transcription batch: scan the bucket, transcribe
// every candidate, upload the subtitles and run log, then remove the
// workspace.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vtt-batch/internal/metrics"
	"github.com/snarg/vtt-batch/internal/runlog"
	"github.com/snarg/vtt-batch/internal/scan"
	"github.com/snarg/vtt-batch/internal/transcribe"
)

// Scanner produces the run's candidates. Candidates are valid even when the
// error is non-nil.
type Scanner interface {
	Scan(ctx context.Context, dir string, rl *runlog.Log) ([]scan.Candidate, error)
}

// Transcriber turns one local media file into a subtitle file in outDir.
type Transcriber interface {
	Transcribe(ctx context.Context, localPath, remoteKey, outDir string) (string, error)
}

// Uploader stores run artifacts.
type Uploader interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// Options configures a Runner.
type Options struct {
	ScratchDir string
	Location   *time.Location // zone of the run prefix
	Workers    int            // candidates processed at once, minimum 1
}

// Runner executes batch runs. A Runner is safe for concurrent use; each run
// gets its own workspace.
type Runner struct {
	scanner     Scanner
	transcriber Transcriber
	uploader    Uploader
	opts        Options
	log         zerolog.Logger
	now         func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(s Scanner, t Transcriber, u Uploader, opts Options, log zerolog.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	return &Runner{
		scanner:     s,
		transcriber: t,
		uploader:    u,
		opts:        opts,
		log:         log,
		now:         time.Now,
	}
}

// Run performs one batch. The only error returned is a failure to create the
// workspace; every other failure is reported in the Result. The workspace is
// removed before Run returns, including when a collaborator panics.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	started := r.now()
	ws, err := NewWorkspace(r.opts.ScratchDir, started, r.opts.Location)
	if err != nil {
		metrics.BatchRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	log := r.log.With().Str("run_id", ws.RunID).Str("prefix", ws.Prefix).Logger()
	defer func() {
		if err := ws.Remove(); err != nil {
			log.Error().Err(err).Str("workspace", ws.Root).Msg("workspace cleanup failed")
		}
		metrics.BatchRunDuration.Observe(time.Since(started).Seconds())
	}()

	rl := runlog.New(ws.LogPath, log)
	rl.Writef("Batch transcription started at %s", ws.Prefix)
	rl.Writef("Run ID: %s", ws.RunID)
	rl.Writef("Workspace: %s\n", ws.Root)
	log.Info().Str("workspace", ws.Root).Msg("batch run started")

	candidates, scanErr := r.scanner.Scan(ctx, ws.MediaDir, rl)
	var runErrs []string
	if scanErr != nil {
		runErrs = append(runErrs, scanErr.Error())
	}

	if len(candidates) == 0 && scanErr == nil {
		rl.Write("No files to transcribe")
		res := Summarize(nil, nil)
		return r.finish(log, ws, &res, started), nil
	}

	rl.Writef("Found %d files to transcribe\n", len(candidates))
	outcomes := r.process(ctx, log, ws, rl, candidates)

	r.uploadOutputs(ctx, log, ws, rl)

	res := Summarize(outcomes, runErrs)
	rl.Writef("Batch finished: %s (%d succeeded, %d failed)", res.Message, res.SuccessCount, res.FailureCount)
	r.uploadLog(ctx, log, ws)

	return r.finish(log, ws, &res, started), nil
}

func (r *Runner) finish(log zerolog.Logger, ws *Workspace, res *Result, started time.Time) *Result {
	res.RunID = ws.RunID
	res.Prefix = ws.Prefix
	metrics.BatchRunsTotal.WithLabelValues(string(res.Status)).Inc()
	log.Info().
		Str("status", string(res.Status)).
		Int("succeeded", res.SuccessCount).
		Int("failed", res.FailureCount).
		Dur("elapsed", time.Since(started)).
		Msg("batch run finished")
	return res
}

// process transcribes every candidate, one at a time or with a bounded pool,
// then promotes the staged subtitles into the output area. Outcomes are
// returned in candidate order.
func (r *Runner) process(ctx context.Context, log zerolog.Logger, ws *Workspace, rl *runlog.Log, candidates []scan.Candidate) []Outcome {
	outcomes := make([]Outcome, len(candidates))
	var rejected atomic.Bool
	workers := min(r.opts.Workers, len(candidates))
	if workers <= 1 {
		for i, c := range candidates {
			outcomes[i] = r.processOne(ctx, log, ws, rl, i, c, &rejected)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					outcomes[i] = r.processOne(ctx, log, ws, rl, i, candidates[i], &rejected)
				}
			}()
		}
		for i := range candidates {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}
	r.promote(log, ws, rl, outcomes)
	return outcomes
}

// processOne transcribes one candidate into its own staging directory. On
// success the returned Outcome's Artifact is the staged subtitle file. A panic
// in the transcriber becomes a failed Outcome.
func (r *Runner) processOne(ctx context.Context, log zerolog.Logger, ws *Workspace, rl *runlog.Log, i int, c scan.Candidate, rejected *atomic.Bool) (out Outcome) {
	defer os.Remove(c.LocalPath)

	fail := func(err error) Outcome {
		metrics.FilesProcessedTotal.WithLabelValues("failure").Inc()
		log.Warn().Err(err).Str("key", c.Key).Msg("file failed")
		rl.Writef("Error processing %s: %v\n", c.Key, err)
		return Outcome{Key: c.Key, Err: err}
	}

	defer func() {
		if rv := recover(); rv != nil {
			metrics.TranscriptionErrorsTotal.WithLabelValues(string(transcribe.KindUnexpected)).Inc()
			log.Error().Interface("panic", rv).Str("key", c.Key).Msg("transcriber panicked")
			out = fail(&transcribe.Error{Kind: transcribe.KindUnexpected, Message: fmt.Sprintf("panic: %v", rv)})
		}
	}()

	if rejected.Load() {
		return fail(errors.New("skipped: the transcription API rejected the credential earlier in this run"))
	}
	rl.Writef("Processing file: %s", c.Key)

	staging := filepath.Join(ws.StagingDir, strconv.Itoa(i))
	if err := os.Mkdir(staging, 0o700); err != nil {
		return fail(fmt.Errorf("create staging dir: %w", err))
	}
	vtt, err := r.transcriber.Transcribe(ctx, c.LocalPath, c.Key, staging)
	if err != nil {
		kind := transcribe.KindOf(err)
		metrics.TranscriptionErrorsTotal.WithLabelValues(string(kind)).Inc()
		if kind == transcribe.KindUnauthorized && !rejected.Swap(true) {
			log.Error().Msg("transcription credential rejected; skipping remaining files")
			rl.Write("Transcription credential rejected; remaining files will be skipped")
		}
		return fail(err)
	}

	if err := os.Remove(c.LocalPath); err == nil {
		rl.Writef("Cleaned up local file: %s\n", c.LocalPath)
	}
	return Outcome{Key: c.Key, Artifact: vtt}
}

// promote moves staged subtitles into the output area in candidate order, so
// when two keys share a subtitle name the one listed later wins regardless of
// which worker finished first.
func (r *Runner) promote(log zerolog.Logger, ws *Workspace, rl *runlog.Log, outcomes []Outcome) {
	owner := make(map[string]string)
	for i := range outcomes {
		o := &outcomes[i]
		if o.Err != nil {
			continue
		}
		name := filepath.Base(o.Artifact)
		final := filepath.Join(ws.OutputDir, name)
		if err := os.Rename(o.Artifact, final); err != nil {
			err = fmt.Errorf("move subtitles to output: %w", err)
			metrics.FilesProcessedTotal.WithLabelValues("failure").Inc()
			log.Warn().Err(err).Str("key", o.Key).Msg("file failed")
			rl.Writef("Error processing %s: %v\n", o.Key, err)
			*o = Outcome{Key: o.Key, Err: err}
			continue
		}
		if prev, ok := owner[name]; ok {
			log.Warn().Str("key", o.Key).Str("replaced", prev).Str("name", name).Msg("subtitle name collision")
			rl.Writef("%s replaces the subtitles of %s", name, prev)
		}
		owner[name] = o.Key
		o.Artifact = final
		rl.Writef("Successfully generated VTT: %s", name)
		metrics.FilesProcessedTotal.WithLabelValues("success").Inc()
	}
}

// uploadOutputs uploads every file in the output area under the run prefix.
// Failures are logged and the remaining files are still uploaded.
func (r *Runner) uploadOutputs(ctx context.Context, log zerolog.Logger, ws *Workspace, rl *runlog.Log) {
	entries, err := os.ReadDir(ws.OutputDir)
	if err != nil {
		log.Error().Err(err).Msg("read output dir")
		rl.Writef("Error reading output directory: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	rl.Write("Uploading files to storage...")
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		key := ws.Key(e.Name())
		if err := r.upload(ctx, key, filepath.Join(ws.OutputDir, e.Name()), "text/vtt"); err != nil {
			log.Error().Err(err).Str("key", key).Msg("upload failed")
			rl.Writef("Error uploading %s: %v", e.Name(), err)
			continue
		}
		rl.Writef("Uploaded: %s", key)
	}
}

// uploadLog uploads the run log. It is the last write of the run, so a
// failure only reaches the process log.
func (r *Runner) uploadLog(ctx context.Context, log zerolog.Logger, ws *Workspace) {
	key := ws.Key("log.txt")
	if err := r.upload(ctx, key, ws.LogPath, "text/plain; charset=utf-8"); err != nil {
		log.Error().Err(err).Str("key", key).Msg("run log upload failed")
	}
}

func (r *Runner) upload(ctx context.Context, key, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err == nil {
		err = r.uploader.Save(ctx, key, data, contentType)
	}
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return &UploadError{Key: key, Err: err}
	}
	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	return nil
}
