package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"token-ledger/internal/domain"
)

// ScriptedCall is a call with the script line it came from.
type ScriptedCall struct {
	Line int
	Call domain.Call
}

// maxLineSize bounds one script line; transfer-many batches can be long.
const maxLineSize = 4 << 20

// ReadCalls decodes a call script: one JSON object per line. Blank lines and
// lines starting with # are skipped. Unknown fields are rejected so that a
// typo cannot silently drop an argument.
func ReadCalls(r io.Reader) ([]ScriptedCall, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var calls []ScriptedCall
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(text))
		dec.DisallowUnknownFields()

		var call domain.Call
		if err := dec.Decode(&call); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCall, line, err)
		}
		if call.Op == "" {
			return nil, fmt.Errorf("%w: line %d: missing op", ErrInvalidCall, line)
		}
		calls = append(calls, ScriptedCall{Line: line, Call: call})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read call script: %w", err)
	}
	return calls, nil
}
