// Package models holds the storage-side record types.
package models

import "time"

// TurnRecord is one processed chat turn in the audit log.
type TurnRecord struct {
	ID           string
	SessionID    string
	Utterance    string
	ResponseType string
	LatencyMS    int
	CreatedAt    time.Time
}
