// Package fileio wraps the whole-file read/write operations the
// sender and receiver binaries need at their command-line boundary,
// with errors wrapped by github.com/pkg/errors so they carry a stack
// trace.
package fileio

import (
	"os"

	"github.com/pkg/errors"
)

// ReadFile loads an entire file into memory. The protocol has no
// notion of streaming — the sender engine needs the whole payload up
// front to compute its frame count.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fileio: read %s", path)
	}
	return data, nil
}

// WriteFile writes the receiver's reassembled bytes to path, creating
// it if necessary and truncating any existing contents.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "fileio: write %s", path)
	}
	return nil
}
