// Package detect classifies events into ATT&CK techniques with an ordered
// rule table.
package detect

import (
	"time"

	"sentra/core"
	"sentra/metrics"

	"go.uber.org/zap"
)

// Engine evaluates the ordered rule table against events.
// It is safe for concurrent use once configured.
type Engine struct {
	rules  []Rule
	loc    *time.Location
	logger *zap.SugaredLogger
}

// NewEngine creates an engine with the default rule table.
func NewEngine(logger *zap.SugaredLogger) *Engine {
	return NewEngineWithRules(DefaultRules(), logger)
}

// NewEngineWithRules creates an engine over a custom ordered rule table.
func NewEngineWithRules(rules []Rule, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{rules: rules, loc: time.Local, logger: logger}
}

// SetLocation sets the zone used to order detections whose time carries none.
func (e *Engine) SetLocation(loc *time.Location) {
	if loc != nil {
		e.loc = loc
	}
}

// Rules returns a copy of the rule table in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Classify returns the detection for the first matching rule, if any.
func (e *Engine) Classify(ev core.EventRecord) (core.ThreatDetection, bool) {
	v := newEventView(ev)
	for i := range e.rules {
		r := &e.rules[i]
		if r.match == nil || !r.match(v) {
			continue
		}
		return newDetection(ev, r), true
	}
	return core.ThreatDetection{}, false
}

// Detect classifies every event and returns the detections newest first.
// An event yields at most one detection.
func (e *Engine) Detect(events []core.EventRecord) []core.ThreatDetection {
	detections := make([]core.ThreatDetection, 0)
	for _, ev := range events {
		d, ok := e.Classify(ev)
		if !ok {
			continue
		}
		metrics.DetectionsTotal.WithLabelValues(d.Technique, d.Severity).Inc()
		detections = append(detections, d)
	}
	SortDetections(detections, e.loc)

	e.logger.Debugw("Rule evaluation complete",
		"events", len(events),
		"detections", len(detections))
	return detections
}

func newDetection(ev core.EventRecord, r *Rule) core.ThreatDetection {
	source := r.Source
	if source == "" {
		source = ev.Source
		if isBlank(source) {
			source = ev.Type
		}
	}
	return core.ThreatDetection{
		Time:      ev.Time,
		User:      NormalizeUser(ev),
		Source:    source,
		Technique: r.Technique,
		Name:      r.Name,
		Tactic:    r.Tactic,
		Severity:  r.Severity,
		Details:   ev.Details,
	}
}
