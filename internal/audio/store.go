// Package audio resolves download references produced by the session
// engine to recording files on disk. The engine never touches audio
// bytes; this package is the boundary where opaque refs become streams.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store locates recordings under a root directory. The telephony system
// writes recordings into dated subdirectories (YYYY/MM/DD); flat layouts
// are supported as a fallback for imported archives.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Ref is the audio-store side of a download reference: a bare filename
// plus the call date used to locate the dated subdirectory.
type Ref struct {
	Filename string
	CallDate string // YYYY-MM-DD
}

// Resolve maps a ref to an on-disk path, trying the dated layout first
// and the flat layout second. Returns os.ErrNotExist (wrapped) when the
// file is in neither place.
func (s *Store) Resolve(ref Ref) (string, error) {
	name := filepath.Base(ref.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid recording filename %q", ref.Filename)
	}

	var candidates []string
	if dated := datedSubdir(ref.CallDate); dated != "" {
		candidates = append(candidates, filepath.Join(s.root, dated, name))
	}
	candidates = append(candidates, filepath.Join(s.root, name))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("recording %s: %w", name, os.ErrNotExist)
}

// Open resolves a ref and opens the file for streaming.
func (s *Store) Open(ref Ref) (*os.File, error) {
	path, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// datedSubdir converts a YYYY-MM-DD call date to the YYYY/MM/DD layout
// used by the recorder. Malformed dates yield "" and skip the dated
// candidate.
func datedSubdir(callDate string) string {
	parts := strings.SplitN(callDate, "-", 3)
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return ""
	}
	return filepath.Join(parts[0], parts[1], parts[2])
}
