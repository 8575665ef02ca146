// Package core defines the domain model and collaborator interfaces for Sentra.
//
// # Architecture Overview
//
// The core package provides:
//   - Domain types (EventRecord, ThreatDetection, FeatureRow, RunRecord, etc.)
//   - Collaborator interfaces for event sources and stores
//   - Timestamp parsing shared by every windowed computation
//   - The noise preprocessor and the Session that owns the event snapshot
//
// # Design Principles
//
// Interfaces follow these principles:
//  1. Small, focused interfaces (1-5 methods)
//  2. Accept interfaces, return concrete types
//  3. context.Context as first parameter on anything that touches storage
//  4. Errors wrapped with %w so callers can match storage sentinels
//
// # Session
//
// Session loads the snapshot lazily from an EventSource and keeps it until
// Invalidate or Reload. Reload also persists the snapshot through the
// EventStore so later scoring runs see it as history.
//
// See interfaces.go for the collaborator definitions.
package core
