package correlation

import (
	"moxie-indexer/internal/entityid"
	"moxie-indexer/internal/event"
)

// KeyFunc derives the id of the staged intent a transfer settles.
// It reports false when the transfer cannot settle any intent.
type KeyFunc func(t *event.Transfer) (string, bool)

// PreviousLog pairs a transfer with the log emitted right before it in the
// same transaction: txHash-(logIndex-1).
func PreviousLog(t *event.Transfer) (string, bool) {
	if t.LogIndex == 0 {
		return "", false
	}
	return entityid.TxEntity(t.TxHash, t.LogIndex-1), true
}
