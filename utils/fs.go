package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"uptofetch/internal"
)

// RenameDirective is a path argument split on the "|" rename separator
type RenameDirective struct {
	Path    string
	NewName string
}

// ParseRenameDirective splits "path | newName" into its parts. Without a
// separator the whole trimmed input is the path.
func ParseRenameDirective(input string) RenameDirective {
	path, name, found := strings.Cut(input, "|")
	if !found {
		return RenameDirective{Path: strings.TrimSpace(input)}
	}
	return RenameDirective{
		Path:    strings.TrimSpace(path),
		NewName: strings.TrimSpace(name),
	}
}

// HasRename reports whether a new name was requested
func (d RenameDirective) HasRename() bool {
	return d.NewName != ""
}

// ValidateFileName normalizes name to NFC and rejects anything that could
// leave the source directory.
func ValidateFileName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))

	if name == "" {
		return "", internal.NewValidationError("name", "file name must not be empty")
	}
	if name == "." || name == ".." {
		return "", internal.NewValidationErrorWithValue("name", "file name must not be a dot entry", name)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", internal.NewValidationErrorWithValue("name", "file name must not contain separators", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", internal.NewValidationErrorWithValue("name", "file name must not contain control characters", name)
		}
	}

	return name, nil
}

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates the directory if it doesn't exist
func (f *FileOperations) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a regular file exists at path
func (f *FileOperations) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RenameInPlace renames path to newName inside the same directory and
// returns the new path.
func (f *FileOperations) RenameInPlace(path, newName string) (string, error) {
	name, err := ValidateFileName(newName)
	if err != nil {
		return "", internal.NewLocalFileError(path, fmt.Sprintf("invalid rename target %q", newName), err)
	}

	newPath := filepath.Join(filepath.Dir(path), name)
	if newPath == path {
		return path, nil
	}
	if f.FileExists(newPath) {
		return "", internal.NewLocalFileError(newPath, "rename target already exists", nil)
	}
	if err := os.Rename(path, newPath); err != nil {
		return "", internal.NewLocalFileError(path, "failed to rename file", err)
	}
	return newPath, nil
}

// RemoveIfExists deletes path, ignoring a missing file
func (f *FileOperations) RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CreateUnique creates a new file named name in dir, suffixing " (n)" when
// the name is taken.
func (f *FileOperations) CreateUnique(dir, name string) (*os.File, error) {
	if err := f.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; n < 1000; n++ {
		file, err := os.OpenFile(filepath.Join(dir, candidate), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return file, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	return nil, fmt.Errorf("no free file name for %s in %s", name, dir)
}
