package llm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// TextStream decodes a `data: ` prefixed event stream into text deltas.
// It is finite and not restartable.
type TextStream struct {
	model     string
	body      io.ReadCloser
	reader    *bufio.Reader
	logger    *zap.Logger
	done      bool
	closeOnce sync.Once
}

func newTextStream(model string, body io.ReadCloser, logger *zap.Logger) *TextStream {
	return &TextStream{
		model:  model,
		body:   body,
		reader: bufio.NewReader(body),
		logger: logger,
	}
}

// Recv returns the next non-empty text delta, or io.EOF once the `[DONE]`
// terminator (or the end of the body) was reached.
func (s *TextStream) Recv() (string, error) {
	for !s.done {
		line, readErr := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			text, err := s.decodeLine(line)
			if err != nil {
				return "", err
			}
			if text != "" {
				return text, nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.done = true
				break
			}
			return "", &TransportError{Model: s.model, Err: readErr}
		}
	}
	return "", io.EOF
}

// decodeLine handles a single stream line. Lines that carry no text return
// an empty string; malformed JSON is logged and skipped.
func (s *TextStream) decodeLine(line []byte) (string, error) {
	line = bytes.TrimSpace(line)
	// Blank separators, SSE comments (": keep-alive") and other fields
	if len(line) == 0 || !bytes.HasPrefix(line, dataPrefix) {
		return "", nil
	}
	payload := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
	if bytes.Equal(payload, doneMarker) {
		s.done = true
		return "", nil
	}
	if !gjson.ValidBytes(payload) {
		s.logger.Debug("skipping malformed stream chunk",
			zap.String("model", s.model),
			zap.ByteString("chunk", payload))
		return "", nil
	}

	if apiErr := gjson.GetBytes(payload, "error"); apiErr.Exists() {
		msg := apiErr.Get("message").String()
		if msg == "" {
			msg = apiErr.Raw
		}
		return "", &TransportError{Model: s.model, StatusCode: int(apiErr.Get("code").Int()), Body: msg}
	}

	content := gjson.GetBytes(payload, "choices.0.delta.content")
	if content.Type != gjson.String {
		return "", nil
	}
	return content.Str, nil
}

// Close releases the underlying connection without draining it.
func (s *TextStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
