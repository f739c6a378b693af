package streamclient

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

type reader struct {
	r    *bufio.Reader
	body io.Closer
}

func newReader(body io.ReadCloser) *reader {
	return &reader{
		r:    bufio.NewReader(body),
		body: body,
	}
}

// Next returns the next complete event. Comment lines (keepalive pings) are
// skipped.
func (s *reader) Next() (string, []byte, error) {
	var eventName string
	var data bytes.Buffer

	for {
		line, err := s.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if data.Len() == 0 && eventName == "" {
				if err == io.EOF {
					return "", nil, io.EOF
				}
				continue
			}
			return eventName, data.Bytes(), nil
		}

		if strings.HasPrefix(line, ":") {
			// keepalive comment
		} else if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(chunk)
		}

		if err == io.EOF {
			if data.Len() == 0 && eventName == "" {
				return "", nil, io.EOF
			}
			return eventName, data.Bytes(), nil
		}
	}
}

func (s *reader) Close() error {
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}
