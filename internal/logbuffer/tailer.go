package logbuffer

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// WatchedFile pairs a path with the category assigned to lines read from it
// when no category-override substring rule matches.
type WatchedFile struct {
	Path            string
	DefaultCategory Category
}

// DefaultWatchedFiles returns the built-in watched set under the given home
// directory, matching the layout the launcher writes its own diagnostic
// files to.
func DefaultWatchedFiles(home string) []WatchedFile {
	dir := filepath.Join(home, ".hekabrain")
	return []WatchedFile{
		{Path: filepath.Join(dir, "debug-summary.txt"), DefaultCategory: CategorySystem},
		{Path: filepath.Join(dir, "debug-all.txt"), DefaultCategory: CategoryConsole},
		{Path: filepath.Join(dir, "browser-errors.txt"), DefaultCategory: CategoryRenderer},
	}
}

const pollInterval = 500 * time.Millisecond

type fileState struct {
	size  int64
	mtime time.Time
}

// Tailer polls a fixed set of files and pushes newly appended bytes into a
// Buffer. It never replays content written before it started.
type Tailer struct {
	buf   *Buffer
	files []WatchedFile
	state map[string]fileState
}

// NewTailer creates a Tailer for the given files, recording each file's
// current size/mtime so pre-existing content is not replayed.
func NewTailer(buf *Buffer, files []WatchedFile) *Tailer {
	t := &Tailer{buf: buf, files: files, state: make(map[string]fileState, len(files))}
	for _, f := range files {
		if fi, err := os.Stat(f.Path); err == nil {
			t.state[f.Path] = fileState{size: fi.Size(), mtime: fi.ModTime()}
		} else {
			t.state[f.Path] = fileState{}
		}
	}
	return t
}

// Run polls every 500ms until ctx is canceled.
func (t *Tailer) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollAll()
		}
	}
}

func (t *Tailer) pollAll() {
	for _, f := range t.files {
		t.pollOne(f)
	}
}

func (t *Tailer) pollOne(f WatchedFile) {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return // absent; may appear later
	}
	prev := t.state[f.Path]
	size := fi.Size()
	mtime := fi.ModTime()

	if size < prev.size {
		prev.size = 0
	}
	if size == prev.size && mtime.Equal(prev.mtime) {
		return
	}

	data, err := readRange(f.Path, prev.size, size)
	if err != nil {
		return // swallow I/O errors; file may appear/stabilize later
	}
	t.state[f.Path] = fileState{size: size, mtime: mtime}
	if len(data) == 0 {
		return
	}
	t.buf.PushFileLines(string(data), f.DefaultCategory, time.Now())
}

func readRange(path string, start, end int64) ([]byte, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	if end <= start {
		return nil, nil
	}
	buf := make([]byte, end-start)
	if _, err := fh.ReadAt(buf, start); err != nil {
		return nil, err
	}
	return buf, nil
}
