// Package chainmodel defines the core data types audited by the
// reconciliation engine: jobs (an audited service/blockchain pair),
// blocks (one audit slot per height), and fetches (an immutable
// comparison record).
package chainmodel

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Block.
type Status string

const (
	StatusPending Status = "pd"
	StatusGood    Status = "gd"
	StatusBad     Status = "bd"
	StatusFail    Status = "fl"
)

// Label returns the human-readable form of a status, restoring the
// original system's descriptive strings for dashboards and logs.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusGood:
		return "Success"
	case StatusBad:
		return "Comparison Failure"
	case StatusFail:
		return "Internal Failure"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the status represents a completed check
// (as opposed to awaiting one).
func (s Status) IsTerminal() bool {
	return s == StatusGood || s == StatusBad || s == StatusFail
}

// IsUnsuccessful reports whether the status is eligible for the retry
// pass (BAD or FAIL, but not GOOD or PEND).
func (s Status) IsUnsuccessful() bool {
	return s == StatusBad || s == StatusFail
}

// Sentinel values substituted for fields a source failed to report.
const (
	UnknownHash     = "UNKNOWN_HASH"
	UnknownTxnCount = -1
)

// EpochZero is the sentinel "never completed" timestamp stored on a
// Block that has not yet finished a check.
var EpochZero = time.Unix(0, 0).UTC()

// Job is the audit configuration for one (service, blockchain) pair.
type Job struct {
	ID            uuid.UUID `db:"id"`
	Name          string    `db:"name"`
	Enabled       bool      `db:"enabled"`
	ServiceID     string    `db:"service_id"`
	BlockchainID  string    `db:"blockchain_id"`
	StartHeight   int64     `db:"start_height"`
	EndHeight     int64     `db:"end_height"`
	FinalityDepth int64     `db:"finality_depth"`
	InflightMax   int       `db:"inflight_max"`
	Created       time.Time `db:"created"`
	Updated       time.Time `db:"updated"`
}

// MaxEndHeight is the default, effectively unbounded end_height for a
// job whose audit window is open-ended.
const MaxEndHeight int64 = 1<<63 - 1

// Block is one (job, height) audit slot.
type Block struct {
	ID          uuid.UUID  `db:"id"`
	JobID       uuid.UUID  `db:"job_id"`
	BlockHeight int64      `db:"block_height"`
	Created     time.Time  `db:"created"`
	Updated     time.Time  `db:"updated"`
	Scheduled   time.Time  `db:"scheduled"`
	Completed   time.Time  `db:"completed"`
	Status      Status     `db:"status"`
	FetchID     *uuid.UUID `db:"fetch_id"`
}

// Fetch is an immutable record of one comparison attempt against both
// the canonical and service sources for a single block.
type Fetch struct {
	ID        uuid.UUID  `db:"id"`
	JobID     uuid.UUID  `db:"job_id"`
	BlockID   *uuid.UUID `db:"block_id"`
	Created   time.Time  `db:"created"`

	CanonicalHTTPStatus int    `db:"canonical_http_status"`
	CanonicalBlockHash  string `db:"canonical_block_hash"`
	CanonicalPrevHash   string `db:"canonical_prev_hash"`
	CanonicalTxnCount   int    `db:"canonical_txn_count"`

	ServiceHTTPStatus int    `db:"service_http_status"`
	ServiceBlockHash  string `db:"service_block_hash"`
	ServicePrevHash   string `db:"service_prev_hash"`
	ServiceTxnCount   int    `db:"service_txn_count"`
}
