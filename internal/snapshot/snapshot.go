// Package snapshot maintains hourly and daily subject snapshots.
package snapshot

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/entityid"
	"moxie-indexer/internal/storage"
)

// Bucket is a fixed-size time window a snapshot kind aggregates over.
type Bucket struct {
	Kind domain.Kind
	Size int64 // seconds
}

var (
	// Daily buckets subject state per UTC day.
	Daily = Bucket{Kind: domain.KindSubjectDailySnapshot, Size: domain.SecondsInDay}
	// Hourly buckets subject state per hour.
	Hourly = Bucket{Kind: domain.KindSubjectHourlySnapshot, Size: domain.SecondsInHour}
)

// Boundary returns the exclusive end of the bucket of size containing t.
// A timestamp exactly on a boundary belongs to the next bucket.
func Boundary(t, size int64) int64 {
	return t - t%size + size
}

// Aggregator saves subjects together with their snapshots and keeps the
// snapshot records written since the last Drain for the analytics sink.
// An Aggregator is not safe for concurrent use.
type Aggregator struct {
	buckets []Bucket
	log     zerolog.Logger

	pending map[string]int
	records []storage.SnapshotRecord
}

// NewAggregator creates an Aggregator that updates the daily, then the hourly snapshot.
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		buckets: []Bucket{Daily, Hourly},
		log:     log,
		pending: make(map[string]int),
	}
}

// SaveSubject persists s and then updates every snapshot whose bucket
// contains timestamp.
func (a *Aggregator) SaveSubject(ctx context.Context, repo *entity.Repository, s *domain.Subject, timestamp int64) error {
	if err := repo.SaveSubject(ctx, s); err != nil {
		return fmt.Errorf("save subject %s: %w", s.ID, err)
	}
	for _, b := range a.buckets {
		if err := a.update(ctx, repo, b, s, timestamp); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) update(ctx context.Context, repo *entity.Repository, b Bucket, s *domain.Subject, timestamp int64) error {
	boundary := Boundary(timestamp, b.Size)
	id := entityid.Snapshot(s.ID, boundary)

	snap, ok, err := repo.Snapshot(ctx, b.Kind, id)
	if err != nil {
		return fmt.Errorf("load %s %s: %w", b.Kind, id, err)
	}
	if !ok {
		snap = open(id, s)
		a.log.Debug().Str("kind", b.Kind.String()).Str("id", id).Msg("snapshot opened")
	}

	snap.EndTimestamp = boundary
	snap.Beneficiary = s.Beneficiary
	snap.Reserve = copyInt(s.Reserve)
	snap.TotalSupply = copyInt(s.TotalSupply)

	snap.EndPrice = s.CurrentPrice
	snap.PriceChange = snap.EndPrice.Sub(snap.StartPrice)

	snap.EndUniqueHolders = s.UniqueHolders
	snap.UniqueHoldersChange = snap.EndUniqueHolders - snap.StartUniqueHolders

	snap.EndVolume = copyInt(s.Volume)
	snap.VolumeChange = new(big.Int).Sub(snap.EndVolume, snap.StartVolume)

	snap.EndBeneficiaryFee = copyInt(s.BeneficiaryFee)
	snap.BeneficiaryFeeChange = new(big.Int).Sub(snap.EndBeneficiaryFee, snap.StartBeneficiaryFee)

	snap.EndProtocolFee = copyInt(s.ProtocolFee)
	snap.ProtocolFeeChange = new(big.Int).Sub(snap.EndProtocolFee, snap.StartProtocolFee)

	if err := repo.SaveSnapshot(ctx, b.Kind, snap); err != nil {
		return fmt.Errorf("save %s %s: %w", b.Kind, id, err)
	}
	a.record(b.Kind, snap)
	return nil
}

// open starts a snapshot from the subject's state at the first update in the bucket.
func open(id string, s *domain.Subject) *domain.SubjectSnapshot {
	return &domain.SubjectSnapshot{
		ID:                  id,
		Subject:             s.ID,
		StartPrice:          s.CurrentPrice,
		StartUniqueHolders:  s.UniqueHolders,
		StartVolume:         copyInt(s.Volume),
		StartBeneficiaryFee: copyInt(s.BeneficiaryFee),
		StartProtocolFee:    copyInt(s.ProtocolFee),
	}
}

func (a *Aggregator) record(kind domain.Kind, snap *domain.SubjectSnapshot) {
	key := kind.String() + "/" + snap.ID
	if i, ok := a.pending[key]; ok {
		a.records[i].Snapshot = snap
		return
	}
	a.pending[key] = len(a.records)
	a.records = append(a.records, storage.SnapshotRecord{Kind: kind, Snapshot: snap})
}

// Drain returns the snapshots written since the last Drain or Discard, one
// record per snapshot in first-write order, and resets the buffer.
func (a *Aggregator) Drain() []storage.SnapshotRecord {
	out := a.records
	a.Discard()
	return out
}

// Discard drops buffered snapshot records.
func (a *Aggregator) Discard() {
	a.records = nil
	a.pending = make(map[string]int)
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
