package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"sentra/core"
	"sentra/metrics"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrSourceUnavailable is returned when a source has nothing to read
var ErrSourceUnavailable = errors.New("event source unavailable")

// maxEventsFileSize bounds how much of an events file is read
const maxEventsFileSize = 256 * 1024 * 1024

// JSONFileSource reads events from a JSON file. The file is re-read on every call.
type JSONFileSource struct {
	path   string
	logger *zap.SugaredLogger
}

// NewJSONFileSource creates a JSON file event source
func NewJSONFileSource(path string, logger *zap.SugaredLogger) *JSONFileSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &JSONFileSource{path: path, logger: logger}
}

// Name identifies the source in logs and metrics
func (s *JSONFileSource) Name() string {
	return "json_file"
}

// Events reads and decodes the file
func (s *JSONFileSource) Events(ctx context.Context) ([]core.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrSourceUnavailable, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxEventsFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}

	events, err := DecodeEvents(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	metrics.EventsIngested.WithLabelValues(s.Name()).Add(float64(len(events)))
	s.logger.Debugw("Loaded events from JSON", "path", s.path, "count", len(events))
	return events, nil
}

// eventsEnvelope is the {"events": [...]} form
type eventsEnvelope struct {
	Events []core.EventRecord `json:"events"`
}

// DecodeEvents accepts a JSON array of events, an object with an "events"
// array, or newline-delimited JSON objects. Field names match case-insensitively.
func DecodeEvents(data []byte) ([]core.EventRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []core.EventRecord{}, nil
	}

	switch trimmed[0] {
	case '[':
		var events []core.EventRecord
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("invalid event array: %w", err)
		}
		return nonNil(events), nil
	case '{':
		var env eventsEnvelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Events != nil {
			return env.Events, nil
		}
		return decodeLines(trimmed)
	default:
		return nil, fmt.Errorf("unexpected leading character %q", trimmed[0])
	}
}

func decodeLines(data []byte) ([]core.EventRecord, error) {
	events := make([]core.EventRecord, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e core.EventRecord
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func nonNil(events []core.EventRecord) []core.EventRecord {
	if events == nil {
		return []core.EventRecord{}
	}
	return events
}
