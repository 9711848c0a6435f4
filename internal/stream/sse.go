package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	dataPrefix           = "data:"
	doneMarker           = "[DONE]"
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB
)

// ErrMalformed wraps chunk decoding failures so callers can tell a bad
// payload apart from a transport error.
var ErrMalformed = errors.New("malformed chunk")

// DeltaDecoder extracts the text delta from one SSE data payload. An empty
// string is a valid delta and is skipped.
type DeltaDecoder func(data []byte) (string, error)

// ScanSSE reads Server-Sent-Events lines from r and emits the delta of each
// "data:" line through sink until "[DONE]" or EOF. Comment, event and blank
// lines are ignored. Decode failures are returned wrapped in ErrMalformed.
func ScanSSE(ctx context.Context, r io.Reader, sink *Sink, decode DeltaDecoder) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		data, ok := bytes.CutPrefix(line, []byte(dataPrefix))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		if string(data) == doneMarker {
			return nil
		}
		delta, err := decode(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := sink.Emit(ctx, delta); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}
