package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileMetadata contains metadata about a file in the sync directory
type FileMetadata struct {
	Name      string
	Path      string
	Size      int64
	MTime     time.Time
	IsDir     bool
	IsSymlink bool
}

// ExtractMetadata stats a path without following symlinks
func ExtractMetadata(path string) (*FileMetadata, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Lstat(cleanPath)
	if err != nil {
		return nil, NewScanError(cleanPath, "stat", err)
	}
	return metadataFromInfo(cleanPath, info), nil
}

func metadataFromInfo(path string, info os.FileInfo) *FileMetadata {
	return &FileMetadata{
		Name:      info.Name(),
		Path:      path,
		Size:      info.Size(),
		MTime:     info.ModTime().UTC(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}
}

// IsRegularFile returns true if metadata represents a regular file (not dir, not symlink)
func (m *FileMetadata) IsRegularFile() bool {
	return !m.IsDir && !m.IsSymlink
}

// ValidateName rejects names that would escape the flat sync directory.
// Remote listings are untrusted input.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidPath
	case strings.ContainsAny(name, `/\`):
		return ErrInvalidPath
	case strings.ContainsRune(name, 0):
		return ErrInvalidPath
	}
	return nil
}
