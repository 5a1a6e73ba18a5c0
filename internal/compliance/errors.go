// Package compliance holds the error taxonomy shared by the risk-evaluation
// pipeline. Subpackages wrap these sentinels with %w so callers can branch on
// errors.Is without depending on the concrete component.
package compliance

import "errors"

var (
	// ErrRuleEvaluation marks a single evaluator failure. Absorbed by the engine.
	ErrRuleEvaluation = errors.New("rule evaluation failed")
	// ErrHistoryUnavailable marks a history or customer lookup that could not run.
	ErrHistoryUnavailable = errors.New("transaction history unavailable")
	// ErrGraphUnavailable marks an unreachable graph store. The circular check is unknown, not clean.
	ErrGraphUnavailable = errors.New("graph store unavailable")
	// ErrLedgerWrite is fatal: the compliance record was not persisted.
	ErrLedgerWrite = errors.New("audit ledger write failed")
	// ErrNotification marks an alert that could not be delivered. Never affects the decision.
	ErrNotification = errors.New("notification delivery failed")
	// ErrCustomerNotFound is returned when the sending customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrInvalidTransaction is returned for malformed evaluation requests.
	ErrInvalidTransaction = errors.New("invalid transaction")
)
