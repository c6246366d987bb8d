package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/morezero/endpoint-console/pkg/endpoints"
)

const fileLogPrefix = "snapshot:file"

// FileSource reads a JSON or YAML snapshot from disk. Paths are tried in
// order: the explicit path, then $SNAPSHOT_FILE, then the defaults. The first
// file that exists is used; a file that exists but fails to decode is an
// error rather than a reason to try the next one.
type FileSource struct {
	paths []string
	used  string
}

// NewFileSource creates a FileSource that prefers path when non-empty.
func NewFileSource(path string) *FileSource {
	return &FileSource{paths: candidatePaths(path)}
}

// Describe implements Source.
func (s *FileSource) Describe() string {
	if s.used != "" {
		return "file:" + s.used
	}
	return "file:[" + strings.Join(s.paths, ",") + "]"
}

// Fetch implements Source.
func (s *FileSource) Fetch(_ context.Context) ([]endpoints.Module, error) {
	for _, p := range s.paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s - read %s: %w", fileLogPrefix, p, err)
		}

		modules, err := Decode(data, FormatFromPath(p))
		if err != nil {
			return nil, fmt.Errorf("%s - %s: %w", fileLogPrefix, p, err)
		}
		s.used = p
		slog.Info(fmt.Sprintf("%s - Loaded %d modules from %s", fileLogPrefix, len(modules), p))
		return modules, nil
	}
	return nil, fmt.Errorf("%s - no snapshot file found (tried %s)", fileLogPrefix, strings.Join(s.paths, ", "))
}
