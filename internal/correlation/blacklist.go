package correlation

import "moxie-indexer/internal/event"

// Default blacklist entries. Intents for these are never staged.
const (
	DefaultBlacklistedSubject = "0x7412b5b7a7498f7b2a663b5c708a98f3092847f8"
	DefaultBlacklistedAuction = "228"
)

// Blacklist holds subjects and auction ids whose intents are ignored.
type Blacklist struct {
	subjects map[string]struct{}
	auctions map[string]struct{}
}

// NewBlacklist builds a Blacklist. Subject addresses are normalised.
func NewBlacklist(subjects, auctions []string) Blacklist {
	b := Blacklist{
		subjects: make(map[string]struct{}, len(subjects)),
		auctions: make(map[string]struct{}, len(auctions)),
	}
	for _, s := range subjects {
		b.subjects[event.NormalizeAddress(s)] = struct{}{}
	}
	for _, a := range auctions {
		b.auctions[a] = struct{}{}
	}
	return b
}

// DefaultBlacklist returns the blacklist used when none is configured.
func DefaultBlacklist() Blacklist {
	return NewBlacklist([]string{DefaultBlacklistedSubject}, []string{DefaultBlacklistedAuction})
}

// Blocks reports whether an intent for subject or auctionID must be skipped.
func (b Blacklist) Blocks(subject, auctionID string) bool {
	if _, ok := b.subjects[subject]; ok {
		return true
	}
	_, ok := b.auctions[auctionID]
	return ok
}
