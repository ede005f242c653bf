package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"tasknlp/internal/logger"
)

// maxLineBytes bounds one audit record; entries hold counts, never text.
const maxLineBytes = 256 * 1024

// Log is the content of an audit file. Skipped holds the 1-based numbers of
// lines that did not decode, typically a record torn by a crash.
type Log struct {
	Entries []Entry
	Skipped []int
}

// ParseFile reads the audit log at path. A missing file is an empty log.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read audit log %s: %w", path, err)
	}
	return parsed.Entries, nil
}

// Parse decodes one entry per line. Blank lines are ignored; undecodable ones
// are logged and skipped.
func Parse(r io.Reader) (Log, error) {
	var out Log
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for n := 1; s.Scan(); n++ {
		raw := bytes.TrimSpace(s.Bytes())
		if len(raw) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			logger.GetLogger().WithField("line", n).Warnf("skipping audit record: %v", err)
			out.Skipped = append(out.Skipped, n)
			continue
		}
		out.Entries = append(out.Entries, entry)
	}
	if err := s.Err(); err != nil {
		return Log{}, err
	}
	return out, nil
}
