package replay

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"moxie-indexer/internal/event"
)

// maxLineSize bounds one archived event.
const maxLineSize = 1 << 20

// ReadArchive decodes newline-delimited JSON envelopes from r.
// Blank lines are ignored.
func ReadArchive(r io.Reader) ([]event.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var events []event.Event
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		ev, err := event.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return events, nil
}

// ReadArchiveFile decodes the archive at path.
func ReadArchiveFile(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	events, err := ReadArchive(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}
