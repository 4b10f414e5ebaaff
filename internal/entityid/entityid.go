// Package entityid derives the composite string keys entities are stored under.
// Every key joins its parts with Separator in a fixed operand order.
package entityid

import (
	"math/big"
	"strconv"
	"strings"
)

// Separator joins the parts of a composite key.
const Separator = "-"

// Join concatenates parts with Separator.
func Join(parts ...string) string {
	return strings.Join(parts, Separator)
}

// TxEntity computes the id of an entity created by a single log.
// Formula: txHash-logIndex
func TxEntity(txHash string, logIndex uint64) string {
	return Join(txHash, strconv.FormatUint(logIndex, 10))
}

// BlockInfo computes a BlockInfo id: the decimal block number.
func BlockInfo(blockNumber uint64) string {
	return strconv.FormatUint(blockNumber, 10)
}

// Portfolio computes a Portfolio id.
// Formula: user-subject
func Portfolio(user, subject string) string {
	return Join(user, subject)
}

// AuctionOrder computes an AuctionOrder id from the intent tuple.
// Formula: subject-userID-buyAmount-sellAmount
func AuctionOrder(subject string, userID, buyAmount, sellAmount *big.Int) string {
	return Join(subject, bigString(userID), bigString(buyAmount), bigString(sellAmount))
}

// Snapshot computes a subject snapshot id for a bucket boundary.
// Formula: subject-boundary
func Snapshot(subject string, boundary int64) string {
	return Join(subject, strconv.FormatInt(boundary, 10))
}

// AuthorizedFunction computes an AuthorizedFunction id.
// Formula: signature-manager
func AuthorizedFunction(signature, manager string) string {
	return Join(signature, manager)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
