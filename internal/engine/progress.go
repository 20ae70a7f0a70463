package engine

import (
	"errors"
	"io"
	"os"

	"gend/pkg/types"
)

// ProgressKind tags a load-progress callback.
type ProgressKind string

const (
	// ProgressInitiate marks the start of one artifact.
	ProgressInitiate ProgressKind = "initiate"
	// ProgressUpdate reports byte-level progress for the named artifact.
	ProgressUpdate ProgressKind = "progress"
	// ProgressDone marks the completion of one artifact.
	ProgressDone ProgressKind = "done"
)

// ProgressEvent is one load-progress callback payload.
type ProgressEvent struct {
	Kind     ProgressKind
	File     string
	Progress int64
	Total    int64
}

// ProgressFunc receives load-progress events. Implementations should be
// lightweight; a nil ProgressFunc disables reporting.
type ProgressFunc func(ProgressEvent)

// progressChunkBytes is the read granularity for artifact prefetch. Large
// enough to keep syscall overhead low, small enough for smooth progress.
const progressChunkBytes = 8 << 20

// readArtifact reads one artifact end to end, emitting initiate, incremental
// progress and done events. The read pulls the file into the page cache so a
// subsequent mmap by the runtime is warm; the bytes themselves are discarded.
func readArtifact(a types.Artifact, onProgress ProgressFunc) error {
	emit := func(kind ProgressKind, done int64) {
		if onProgress != nil {
			onProgress(ProgressEvent{Kind: kind, File: a.File, Progress: done, Total: a.SizeBytes})
		}
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	emit(ProgressInitiate, 0)
	buf := make([]byte, progressChunkBytes)
	var done int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			done += int64(n)
			emit(ProgressUpdate, done)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	emit(ProgressDone, done)
	return nil
}

// ReadArtifacts prefetches every artifact of a model in declaration order.
func ReadArtifacts(mdl types.Model, onProgress ProgressFunc) error {
	for _, a := range mdl.Artifacts {
		if err := readArtifact(a, onProgress); err != nil {
			return err
		}
	}
	return nil
}
