// Package attachment stages incoming binary payloads on local disk so the
// asset publisher can stream them to the engine's file store. A staged
// attachment lives for one request: callers must Release it on every exit
// path, typically via defer.
package attachment

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"sync"
)

// ErrStagingFailed wraps local I/O failures while writing a payload to disk.
var ErrStagingFailed = errors.New("staging attachment failed")

// Staged is a scoped handle on a temporary file holding one attachment.
type Staged struct {
	path      string
	mediaType string

	release sync.Once
	err     error
}

// Stage writes payload to a temporary file and returns a handle on it.
// mediaType is the caller's hint (e.g. "image/jpeg") and only influences
// the file suffix; the payload is not inspected.
func Stage(payload []byte, mediaType string) (*Staged, error) {
	f, err := os.CreateTemp("", "attachment-*"+suffixFor(mediaType))
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", ErrStagingFailed, err)
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: write %q: %v", ErrStagingFailed, f.Name(), err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: close %q: %v", ErrStagingFailed, f.Name(), err)
	}

	return &Staged{path: f.Name(), mediaType: mediaType}, nil
}

// Path returns the on-disk location of the staged payload. Invalid after
// Release.
func (s *Staged) Path() string {
	return s.path
}

// MediaType returns the declared media type of the payload.
func (s *Staged) MediaType() string {
	return s.mediaType
}

// Release deletes the staged file. It is idempotent: only the first call
// removes the file, later calls return the first call's result.
func (s *Staged) Release() error {
	s.release.Do(func() {
		s.err = os.Remove(s.path)
	})
	return s.err
}

func suffixFor(mediaType string) string {
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
