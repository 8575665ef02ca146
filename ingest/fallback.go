package ingest

import (
	"context"
	"errors"
	"fmt"

	"sentra/core"

	"go.uber.org/zap"
)

// NamedSource is an EventSource with a name for logs
type NamedSource interface {
	core.EventSource
	Name() string
}

// FallbackSource tries each source in order and returns the first
// non-empty snapshot. Failures are logged and the next source is tried.
type FallbackSource struct {
	sources []NamedSource
	logger  *zap.SugaredLogger
}

// NewFallbackSource creates a source chain
func NewFallbackSource(logger *zap.SugaredLogger, sources ...NamedSource) *FallbackSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FallbackSource{sources: sources, logger: logger}
}

// Events returns the first non-empty snapshot. When every source is empty
// the result is empty; when every source failed the last error is returned.
func (f *FallbackSource) Events(ctx context.Context) ([]core.EventRecord, error) {
	var lastErr error
	failed := 0
	for _, src := range f.sources {
		events, err := src.Events(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			f.logger.Warnw("Event source failed, trying next", "source", src.Name(), "error", err)
			lastErr = err
			failed++
			continue
		}
		if len(events) > 0 {
			f.logger.Infow("Events loaded", "source", src.Name(), "count", len(events))
			return events, nil
		}
		f.logger.Debugw("Event source empty, trying next", "source", src.Name())
	}
	if failed > 0 && failed == len(f.sources) {
		return nil, fmt.Errorf("all event sources failed: %w", lastErr)
	}
	return []core.EventRecord{}, nil
}
