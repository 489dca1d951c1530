package chat

import (
	"bufio"
	"bytes"
	"io"
)

const maxEventSize = 1 << 20

// eventReader yields the data payload of each server-sent event.
type eventReader struct {
	reader *bufio.Reader
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the joined data lines of the next event, or io.EOF.
func (r *eventReader) next() ([]byte, error) {
	var lines [][]byte
	size := 0
	for {
		line, errRead := r.reader.ReadBytes('\n')
		if errRead != nil && errRead != io.EOF {
			return nil, errRead
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		switch {
		case len(trimmed) == 0:
			if len(lines) > 0 {
				return bytes.Join(lines, []byte("\n")), nil
			}
		case bytes.HasPrefix(trimmed, []byte("data:")):
			data := bytes.TrimPrefix(trimmed[5:], []byte(" "))
			size += len(data)
			if size > maxEventSize {
				return nil, errEventTooLarge
			}
			lines = append(lines, data)
		}
		// Comments (": keep-alive") and other fields are ignored.
		if errRead == io.EOF {
			if len(lines) > 0 {
				return bytes.Join(lines, []byte("\n")), nil
			}
			return nil, io.EOF
		}
	}
}
