package event

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// Position is the chain ordering key of an event.
// Order: (block_number ASC, log_index ASC)
type Position struct {
	BlockNumber uint64
	LogIndex    uint64
}

// Compare returns:
//   - negative if p < o
//   - zero if p == o
//   - positive if p > o
func (p Position) Compare(o Position) int {
	if p.BlockNumber != o.BlockNumber {
		if p.BlockNumber < o.BlockNumber {
			return -1
		}
		return 1
	}
	if p.LogIndex != o.LogIndex {
		if p.LogIndex < o.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.BlockNumber, p.LogIndex)
}

// Sort orders events by position. Equal positions keep their input order.
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Header().Position().Compare(events[j].Header().Position()) < 0
	})
}

// ValidateOrdering checks that positions are strictly increasing.
// Returns ErrInvalidOrdering if not.
func ValidateOrdering(events []Event) error {
	for i := 1; i < len(events); i++ {
		prev := events[i-1].Header().Position()
		cur := events[i].Header().Position()
		if prev.Compare(cur) >= 0 {
			return fmt.Errorf("%w: %s then %s", ErrInvalidOrdering, prev, cur)
		}
	}
	return nil
}
