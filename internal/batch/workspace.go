package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PrefixLayout formats the run start time into the storage key prefix.
const PrefixLayout = "2006-01-02_15-04-05"

// Workspace is the scratch directory owned by one run.
//
//	<Root>/media    downloaded source files
//	<Root>/staging  subtitles as written by the transcriber
//	<Root>/output   subtitles ready for upload
//	<Root>/log.txt  run log
type Workspace struct {
	Root       string
	MediaDir   string
	StagingDir string
	OutputDir  string
	LogPath    string
	Prefix     string
	RunID      string

	once      sync.Once
	removeErr error
}

// NewWorkspace creates a uniquely named workspace under base. If any part of
// it cannot be created, whatever was created is removed before returning.
func NewWorkspace(base string, started time.Time, loc *time.Location) (*Workspace, error) {
	if loc == nil {
		loc = time.UTC
	}
	prefix := started.In(loc).Format(PrefixLayout)
	runID := uuid.NewString()
	root := filepath.Join(base, fmt.Sprintf("vtt-batch-%s-%s", prefix, runID))

	ws := &Workspace{
		Root:       root,
		MediaDir:   filepath.Join(root, "media"),
		StagingDir: filepath.Join(root, "staging"),
		OutputDir:  filepath.Join(root, "output"),
		LogPath:    filepath.Join(root, "log.txt"),
		Prefix:     prefix,
		RunID:      runID,
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", base, err)
	}
	if err := os.Mkdir(root, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	for _, dir := range []string{ws.MediaDir, ws.StagingDir, ws.OutputDir} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("create workspace: %w", err)
		}
	}
	return ws, nil
}

// Key returns the storage key for name under the run prefix.
func (ws *Workspace) Key(name string) string {
	return ws.Prefix + "/" + name
}

// Remove deletes the workspace. Only the first call does any work; later
// calls return the first call's result.
func (ws *Workspace) Remove() error {
	ws.once.Do(func() {
		ws.removeErr = os.RemoveAll(ws.Root)
	})
	return ws.removeErr
}
