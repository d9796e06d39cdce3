package storage

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// UploadCache keeps uploaded files on disk under content-addressed names
type UploadCache struct {
	dir string
}

// NewUploadCache stores files in dir
func NewUploadCache(dir string) *UploadCache {
	return &UploadCache{dir: dir}
}

// Dir is the cache directory
func (c *UploadCache) Dir() string {
	return c.dir
}

// Digest is the hex SHA-256 of content
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Path is where content for a page slot is cached:
// {page}_{input}_{sha256[:16]}{ext}, ext defaulting to .csv
func (c *UploadCache) Path(pageKey, inputKey, fileName, digest string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".csv"
	}
	if pageKey == "" {
		pageKey = "ingest"
	}
	if inputKey == "" {
		inputKey = "file"
	}
	short := digest
	if len(short) > 16 {
		short = short[:16]
	}
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s_%s%s", pageKey, inputKey, short, ext))
}

// Store writes content unless an identical file is already cached and
// returns its path and digest
func (c *UploadCache) Store(pageKey, inputKey, fileName string, content []byte) (string, string, error) {
	digest := Digest(content)
	path := c.Path(pageKey, inputKey, fileName, digest)

	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(content)) {
		return path, digest, nil
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", "", fmt.Errorf("create upload cache: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", "", fmt.Errorf("move upload into cache: %w", err)
	}
	return path, digest, nil
}

// Remove deletes a cached file; a missing file is not an error
func (c *UploadCache) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cached upload: %w", err)
	}
	return nil
}

// RowCount streams a CSV file and counts records after the header
func RowCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	count := -1
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("count rows in %s: %w", path, err)
		}
		count++
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}
