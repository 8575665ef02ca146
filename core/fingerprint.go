package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FingerprintFields are the event fields that identify a collected record.
var FingerprintFields = []string{"time", "type", "severity", "user", "process", "source", "details"}

// EventFingerprint returns a stable SHA-256 identity for an event. Two
// collections of the same platform record produce the same fingerprint.
func EventFingerprint(e EventRecord) string {
	parts := make([]string, 0, len(FingerprintFields))
	for _, field := range FingerprintFields {
		parts = append(parts, fmt.Sprintf("%s=%s", field, extractField(e, field)))
	}
	return hash(strings.Join(parts, "|"))
}

// extractField extracts a field value from an event
func extractField(e EventRecord, field string) string {
	switch field {
	case "time":
		return strings.TrimSpace(e.Time)
	case "type":
		return e.Type
	case "severity":
		return e.Severity
	case "user":
		return e.User
	case "process":
		return e.Process
	case "source":
		return e.Source
	case "details":
		return e.Details
	}
	return ""
}

// hash generates a SHA-256 hash of the input string
func hash(input string) string {
	h := sha256.New()
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil))
}
