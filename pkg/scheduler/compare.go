package scheduler

import (
	"fmt"
	"strings"

	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/chainsource"
)

// Compare classifies a pair of fetches: FAIL if the canonical source
// itself failed, BAD if both responded but any of {http_status, hash,
// prev_hash, height, txn_count} differ, GOOD otherwise. It is a pure
// function of its arguments.
func Compare(canonical, service chainsource.Block) chainmodel.Status {
	if !canonical.OK() {
		return chainmodel.StatusFail
	}
	if canonical.HTTPStatus != service.HTTPStatus {
		return chainmodel.StatusBad
	}
	if !equalStringPtr(canonical.Hash, service.Hash) {
		return chainmodel.StatusBad
	}
	if !equalStringPtr(canonical.PrevHash, service.PrevHash) {
		return chainmodel.StatusBad
	}
	if !equalInt64Ptr(canonical.Height, service.Height) {
		return chainmodel.StatusBad
	}
	if !equalIntPtr(canonical.TxnCount, service.TxnCount) {
		return chainmodel.StatusBad
	}
	return chainmodel.StatusGood
}

// DeriveMessage builds the human-readable error message for a non-GOOD
// comparison, matching the original's ChainBlockFetch.error_message:
// canonical failure takes precedence, then service failure, then a
// comma-joined list of field-mismatch reasons.
func DeriveMessage(canonical, service chainsource.Block) string {
	if !canonical.OK() {
		return fmt.Sprintf("canonical block retrieval failure (%d)", canonical.HTTPStatus)
	}
	if !service.OK() {
		return fmt.Sprintf("service block retrieval failure (%d)", service.HTTPStatus)
	}

	var reasons []string
	if !equalStringPtr(canonical.Hash, service.Hash) {
		reasons = append(reasons, fmt.Sprintf("block hash mismatch (%s)", stringPtrOrUnknown(service.Hash)))
	}
	if !equalStringPtr(canonical.PrevHash, service.PrevHash) {
		reasons = append(reasons, fmt.Sprintf("previous block hash mismatch (%s)", stringPtrOrUnknown(service.PrevHash)))
	}
	if !equalIntPtr(canonical.TxnCount, service.TxnCount) {
		reasons = append(reasons, fmt.Sprintf("transaction count mismatch (%d vs %d)", intPtrOrUnknown(service.TxnCount), intPtrOrUnknown(canonical.TxnCount)))
	}
	if !equalInt64Ptr(canonical.Height, service.Height) {
		reasons = append(reasons, fmt.Sprintf("block height mismatch (%d)", int64PtrOr(service.Height, 0)))
	}
	if len(reasons) == 0 {
		return fmt.Sprintf("http status mismatch (%d vs %d)", service.HTTPStatus, canonical.HTTPStatus)
	}
	return strings.Join(reasons, ", ")
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringPtrOrUnknown(s *string) string {
	if s == nil {
		return chainmodel.UnknownHash
	}
	return *s
}

func intPtrOrUnknown(v *int) int {
	if v == nil {
		return chainmodel.UnknownTxnCount
	}
	return *v
}

func int64PtrOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}
