package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/storage"
)

// Granularity labels stored in subject_snapshots.granularity.
const (
	GranularityHour = "hour"
	GranularityDay  = "day"
)

// SnapshotSink mirrors subject snapshots into the subject_snapshots table.
type SnapshotSink struct {
	conn *Conn
}

// NewSnapshotSink creates a new SnapshotSink.
func NewSnapshotSink(conn *Conn) *SnapshotSink {
	return &SnapshotSink{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotSink = (*SnapshotSink)(nil)

// GranularityOf maps a snapshot kind to its granularity label.
func GranularityOf(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindSubjectHourlySnapshot:
		return GranularityHour, nil
	case domain.KindSubjectDailySnapshot:
		return GranularityDay, nil
	default:
		return "", fmt.Errorf("%w: not a snapshot kind: %s", storage.ErrInvalidInput, kind)
	}
}

// WriteSnapshots appends snapshot states in one batch.
// ReplacingMergeTree collapses rows with the same key to the latest write.
func (s *SnapshotSink) WriteSnapshots(ctx context.Context, records []storage.SnapshotRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO subject_snapshots (
			id, granularity, subject, beneficiary, end_timestamp,
			reserve, total_supply,
			start_price, end_price, price_change,
			start_unique_holders, end_unique_holders, unique_holders_change,
			start_volume, end_volume, volume_change,
			start_beneficiary_fee, end_beneficiary_fee, beneficiary_fee_change,
			start_protocol_fee, end_protocol_fee, protocol_fee_change
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		granularity, err := GranularityOf(r.Kind)
		if err != nil {
			return err
		}
		snap := r.Snapshot
		if snap == nil {
			return storage.ErrInvalidInput
		}

		err = batch.Append(
			snap.ID, granularity, snap.Subject, snap.Beneficiary, time.Unix(snap.EndTimestamp, 0).UTC(),
			orZero(snap.Reserve), orZero(snap.TotalSupply),
			snap.StartPrice, snap.EndPrice, snap.PriceChange,
			snap.StartUniqueHolders, snap.EndUniqueHolders, snap.UniqueHoldersChange,
			orZero(snap.StartVolume), orZero(snap.EndVolume), orZero(snap.VolumeChange),
			orZero(snap.StartBeneficiaryFee), orZero(snap.EndBeneficiaryFee), orZero(snap.BeneficiaryFeeChange),
			orZero(snap.StartProtocolFee), orZero(snap.EndProtocolFee), orZero(snap.ProtocolFeeChange),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Latest returns the most recent state of a snapshot. Returns ErrNotFound if not exists.
func (s *SnapshotSink) Latest(ctx context.Context, kind domain.Kind, id string) (*domain.SubjectSnapshot, error) {
	granularity, err := GranularityOf(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, subject, beneficiary, end_timestamp,
			reserve, total_supply,
			start_price, end_price, price_change,
			start_unique_holders, end_unique_holders, unique_holders_change,
			start_volume, end_volume, volume_change,
			start_beneficiary_fee, end_beneficiary_fee, beneficiary_fee_change,
			start_protocol_fee, end_protocol_fee, protocol_fee_change
		FROM subject_snapshots FINAL
		WHERE granularity = ? AND id = ?
		LIMIT 1
	`, granularity, id)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate snapshot: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var (
		snap                                       domain.SubjectSnapshot
		endTime                                    time.Time
		reserve, supply                            big.Int
		startVolume, endVolume, volumeChange       big.Int
		startBenFee, endBenFee, benFeeChange       big.Int
		startProtoFee, endProtoFee, protoFeeChange big.Int
		startPrice, endPrice, priceChange          decimal.Decimal
		startHolders, endHolders, holdersChange    int64
	)
	err = rows.Scan(
		&snap.ID, &snap.Subject, &snap.Beneficiary, &endTime,
		&reserve, &supply,
		&startPrice, &endPrice, &priceChange,
		&startHolders, &endHolders, &holdersChange,
		&startVolume, &endVolume, &volumeChange,
		&startBenFee, &endBenFee, &benFeeChange,
		&startProtoFee, &endProtoFee, &protoFeeChange,
	)
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.EndTimestamp = endTime.Unix()
	snap.Reserve, snap.TotalSupply = &reserve, &supply
	snap.StartPrice, snap.EndPrice, snap.PriceChange = startPrice, endPrice, priceChange
	snap.StartUniqueHolders, snap.EndUniqueHolders, snap.UniqueHoldersChange = startHolders, endHolders, holdersChange
	snap.StartVolume, snap.EndVolume, snap.VolumeChange = &startVolume, &endVolume, &volumeChange
	snap.StartBeneficiaryFee, snap.EndBeneficiaryFee, snap.BeneficiaryFeeChange = &startBenFee, &endBenFee, &benFeeChange
	snap.StartProtocolFee, snap.EndProtocolFee, snap.ProtocolFeeChange = &startProtoFee, &endProtoFee, &protoFeeChange

	return &snap, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
