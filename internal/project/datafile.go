package project

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DataFile describes one of the project's input files as found on disk.
type DataFile struct {
	Role       string    `json:"role"`
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

func statDataFile(role, path string) (DataFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DataFile{}, fmt.Errorf("stat %s file: %w", role, err)
	}
	if info.IsDir() {
		return DataFile{}, fmt.Errorf("%s path %s is a directory", role, path)
	}
	return DataFile{
		Role:       role,
		Path:       path,
		Name:       filepath.Base(path),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}
