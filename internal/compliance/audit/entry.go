// Package audit implements the hash-chained compliance ledger. Every entry
// commits to its predecessor's hash, so any insertion, deletion or edit is
// detectable by recomputing the chain.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// GenesisHash is the previous hash of the first entry in a chain
var GenesisHash = strings.Repeat("0", 64)

// Severity of an audit event
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Standard event types and actors
const (
	EventTransactionRiskEvaluation = "TRANSACTION_RISK_EVALUATION"
	ActorSystem                    = "SYSTEM_ENGINE"
)

// Entry is one immutable ledger record
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	Sequence     int64          `json:"sequence"`
	Timestamp    time.Time      `json:"timestamp"`
	EventType    string         `json:"event_type"`
	Severity     Severity       `json:"severity"`
	Actor        string         `json:"actor"`
	Details      map[string]any `json:"details"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
}

// CanonicalDetails renders details as RFC 8785 canonical JSON. Nil renders as {}.
func CanonicalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit details: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize audit details: %w", err)
	}
	return canonical, nil
}

// DecodeDetails parses stored details, keeping numbers exact
func DecodeDetails(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var details map[string]any
	if err := dec.Decode(&details); err != nil {
		return nil, fmt.Errorf("failed to decode audit details: %w", err)
	}
	if details == nil {
		details = map[string]any{}
	}
	return details, nil
}

// FormatTimestamp is the timestamp form that enters the hash
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// ComputeHash returns hex SHA-256 over
// previousHash|timestamp|eventType|actor|canonical(details).
func ComputeHash(previousHash string, ts time.Time, eventType, actor string, details map[string]any) (string, error) {
	canonical, err := CanonicalDetails(details)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write([]byte("|"))
	h.Write([]byte(FormatTimestamp(ts)))
	h.Write([]byte("|"))
	h.Write([]byte(eventType))
	h.Write([]byte("|"))
	h.Write([]byte(actor))
	h.Write([]byte("|"))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EntryBindingKey is the details key under which an entry's id, sequence and
// severity enter the hash. Callers may not use it in their own details.
const EntryBindingKey = "_entry"

// Recompute hashes the entry's stored fields. Id, sequence and severity are
// folded into the hashed details under EntryBindingKey; the stored details
// never carry that key.
func (e *Entry) Recompute() (string, error) {
	hashed := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		hashed[k] = v
	}
	hashed[EntryBindingKey] = map[string]any{
		"id":       e.ID.String(),
		"sequence": e.Sequence,
		"severity": string(e.Severity),
	}
	return ComputeHash(e.PreviousHash, e.Timestamp, e.EventType, e.Actor, hashed)
}
