package proxy

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// decodeEnvelope decodes the JSON-RPC response envelope, handling both
// the direct-JSON and SSE-stream response shapes. For a stream, lines are
// scanned for "data:" payloads and the last one is authoritative.
func decodeEnvelope(contentType string, body []byte) (*rpcResponse, error) {
	if isEventStream(contentType) {
		payload, err := lastSSEData(body)
		if err != nil {
			return nil, err
		}
		body = payload
	}
	var env rpcResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func isEventStream(contentType string) bool {
	return strings.Contains(contentType, "text/event-stream")
}

// lastSSEData scans an SSE byte stream for "event: message\ndata: <json>"
// records and returns the last data payload encountered.
func lastSSEData(body []byte) ([]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var last []byte
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		last = []byte(data)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if last == nil {
		return nil, errNoSSEData
	}
	return last, nil
}

var errNoSSEData = &sseError{"no data: payload found in SSE stream"}

type sseError struct{ msg string }

func (e *sseError) Error() string { return e.msg }
