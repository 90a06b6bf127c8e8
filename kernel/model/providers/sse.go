package providers

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// sseReader pulls data payloads out of a text/event-stream body. Comment
// lines and non-data fields are skipped; "[DONE]" ends the stream.
type sseReader struct {
	scanner *bufio.Scanner
	done    bool
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &sseReader{scanner: scanner}
}

// Next returns the next non-empty data payload, or io.EOF once the stream
// is finished.
func (s *sseReader) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	var dataLines [][]byte
	emit := func() ([]byte, bool) {
		if len(dataLines) == 0 {
			return nil, false
		}
		payload := bytes.TrimSpace(bytes.Join(dataLines, []byte("\n")))
		dataLines = dataLines[:0]
		if len(payload) == 0 {
			return nil, false
		}
		return payload, true
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if strings.TrimSpace(line) == "" {
			if payload, ok := emit(); ok {
				return s.check(payload)
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, []byte(strings.TrimSpace(data)))
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.done = true
		return nil, fmt.Errorf("providers: sse scanner: %w", err)
	}
	if payload, ok := emit(); ok {
		return s.check(payload)
	}
	s.done = true
	return nil, io.EOF
}

func (s *sseReader) check(payload []byte) ([]byte, error) {
	if string(payload) == "[DONE]" {
		s.done = true
		return nil, io.EOF
	}
	return payload, nil
}
