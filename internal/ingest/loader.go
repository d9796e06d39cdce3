package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"riskdash/internal/schema"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrEmptyFile is returned for uploads with no content
var ErrEmptyFile = errors.New("file is empty")

// LoadedFile is a parsed CSV together with its detected kind
type LoadedFile struct {
	Kind      schema.Kind
	FileName  string
	Table     *Table
	Detection *Detection
}

// RowCount returns the number of data rows
func (f *LoadedFile) RowCount() int {
	return f.Table.Len()
}

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false
	return reader
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		headers[i] = strings.TrimSpace(h)
	}
	return headers
}

// ReadHeaders returns the trimmed header row of a CSV
func ReadHeaders(r io.Reader) ([]string, error) {
	raw, err := newCSVReader(stripBOM(r)).Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read CSV headers: %w", err)
	}
	return cleanHeaders(raw), nil
}

// Load reads a CSV, detects its dataset kind and keeps every cell as text
func Load(fileName string, r io.Reader) (*LoadedFile, error) {
	reader := newCSVReader(stripBOM(r))

	raw, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file '%s': %w", fileName, ErrEmptyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read CSV headers for file '%s': %w", fileName, err)
	}
	headers := cleanHeaders(raw)

	detection, err := Detect(fileName, headers)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to load CSV for file '%s': %w", fileName, err)
		}
		if isBlankRecord(record) {
			continue
		}
		rows = append(rows, record)
	}

	return &LoadedFile{
		Kind:      detection.Kind,
		FileName:  fileName,
		Table:     NewTable(headers, rows),
		Detection: detection,
	}, nil
}

// LoadBytes is Load over an in-memory upload
func LoadBytes(fileName string, content []byte) (*LoadedFile, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("file '%s': %w", fileName, ErrEmptyFile)
	}
	return Load(fileName, bytes.NewReader(content))
}

// LoadFiles loads several uploads and groups them by detected kind. Empty
// files are skipped; the first detection or parse failure aborts the batch.
func LoadFiles(files map[string][]byte) (map[schema.Kind][]*LoadedFile, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	loaded := make(map[schema.Kind][]*LoadedFile)
	for _, name := range names {
		content := files[name]
		if len(bytes.TrimSpace(content)) == 0 {
			slog.Warn("file is empty; skipping", slog.String("file", name))
			continue
		}
		file, err := LoadBytes(name, content)
		if err != nil {
			return nil, err
		}
		loaded[file.Kind] = append(loaded[file.Kind], file)
	}
	return loaded, nil
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
