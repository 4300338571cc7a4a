// Package seal obtains trusted-timestamp evidence for event content hashes.
//
// Two implementations exist: StubSealer synthesizes non-qualified tokens
// locally and QTSPSealer exchanges with an external Qualified Trust Service
// Provider. The implementation is chosen once at startup, never per call.
package seal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status of an issued seal.
const (
	StatusIssued = "ISSUED"
	StatusFailed = "FAILED"
)

// Seal is the evidence issued for one content hash.
type Seal struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Qualified bool      `json:"qualified"`
	IssuedAt  time.Time `json:"issued_at"`
	Token     []byte    `json:"token"`
	Status    string    `json:"status"`
}

// Sealer requests a seal for a 64-hex SHA-256 content hash. The call may
// block for the duration of the external exchange; it honors ctx cancellation.
type Sealer interface {
	Seal(ctx context.Context, contentHash string) (Seal, error)
	Provider() string
}

// ErrSealTimeout indicates the authority did not reach a terminal status
// within the polling budget. The caller retries with a fresh seal request,
// never by resuming a stale poll.
var ErrSealTimeout = errors.New("seal request timed out awaiting authority")

// AuthError indicates the client-credentials exchange was rejected.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authority authentication failed: status %d: %s", e.StatusCode, e.Body)
}

// SubmissionError indicates evidence creation was rejected outright.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("evidence submission failed: status %d: %s", e.StatusCode, e.Body)
}

// RejectedError indicates the authority processed the evidence and reported
// a terminal ERROR status.
type RejectedError struct {
	EvidenceID string
	Detail     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("evidence %s rejected by authority: %s", e.EvidenceID, e.Detail)
}
