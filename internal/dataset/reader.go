package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/y0ug/hashguard/internal/prefixindex"
)

// Format is the on-disk layout of a dataset.
type Format string

const (
	// FormatText is one HASH or HASH:COUNT per line.
	FormatText Format = "text"
	// FormatCSV is hash,tags,first_seen with tags separated by ';'. An optional header
	// row starting with "hash" is skipped.
	FormatCSV Format = "csv"
)

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) Format {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return FormatCSV
	}
	return FormatText
}

// ReadRecords reads the dataset file at path.
func ReadRecords(path string) ([]prefixindex.CandidateRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	return Parse(file, FormatForPath(path))
}

// Parse reads records in format from r. Structural errors are reported as
// prefixindex.ErrMalformedRecord with the offending line; hash validation is left to
// prefixindex.Build.
func Parse(r io.Reader, format Format) ([]prefixindex.CandidateRecord, error) {
	switch format {
	case FormatCSV:
		return parseCSV(r)
	case FormatText, "":
		return parseText(r)
	}
	return nil, fmt.Errorf("unsupported dataset format %q", format)
}

func parseText(r io.Reader) ([]prefixindex.CandidateRecord, error) {
	var records []prefixindex.CandidateRecord

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		hash, count, found := strings.Cut(text, ":")
		rec := prefixindex.CandidateRecord{FullHash: strings.TrimSpace(hash)}
		if found {
			n, err := strconv.Atoi(strings.TrimSpace(count))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: line %d: invalid count %q", prefixindex.ErrMalformedRecord, line, count)
			}
			rec.Occurrences = n
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return records, nil
}

func parseCSV(r io.Reader) ([]prefixindex.CandidateRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	var records []prefixindex.CandidateRecord
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("%w: %v", prefixindex.ErrMalformedRecord, err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(row[0]), "hash") {
				continue
			}
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) > 3 {
			return nil, fmt.Errorf("%w: line %d: expected at most 3 fields, got %d", prefixindex.ErrMalformedRecord, line, len(row))
		}

		rec := prefixindex.CandidateRecord{FullHash: strings.TrimSpace(row[0])}
		if len(row) > 1 {
			for _, tag := range strings.Split(row[1], ";") {
				if tag = strings.TrimSpace(tag); tag != "" {
					rec.SourceTags = append(rec.SourceTags, tag)
				}
			}
		}
		if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
			seen, err := parseFirstSeen(strings.TrimSpace(row[2]))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid first_seen %q", prefixindex.ErrMalformedRecord, line, row[2])
			}
			rec.FirstSeen = seen
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseFirstSeen(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, value)
}
