package sale

import (
	"fmt"
	"math/big"
)

// Ledger owns the append-only contribution history, the per-(user, saleType)
// running aggregates and the per-sale contributor enumeration set.
type Ledger struct {
	store Storage
}

// NewLedger binds a contribution ledger to the provided storage.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) contributors(saleType string) *AddressSet {
	return NewAddressSet(l.store, contributorsPrefix+saleType)
}

type storedSummary struct {
	TotalUsd    *big.Int
	TotalVolume *big.Int
}

// Record appends a contribution, updates the aggregate totals and, on a
// user's first contribution for the sale type, registers them in the
// contributor set. Returns the appended (sanitised) record.
func (l *Ledger) Record(c *Contribution) (*Contribution, error) {
	if c == nil {
		return nil, fmt.Errorf("sale: nil contribution")
	}
	record := c.Clone()
	saleType, err := NormalizeSaleType(record.SaleType)
	if err != nil {
		return nil, err
	}
	record.SaleType = saleType
	if record.UsdAmount == nil || record.UsdAmount.Sign() <= 0 {
		return nil, fmt.Errorf("sale: contribution usd amount must be positive")
	}
	if record.TokenVolume == nil || record.TokenVolume.Sign() <= 0 {
		return nil, fmt.Errorf("sale: contribution volume must be positive")
	}

	countKey := contribCountKey(saleType, record.User)
	var count uint64
	if _, err := l.store.KVGet(countKey, &count); err != nil {
		return nil, err
	}
	if err := l.store.KVPut(contribRecordKey(saleType, record.User, count), record.toStored()); err != nil {
		return nil, err
	}
	if err := l.store.KVPut(countKey, count+1); err != nil {
		return nil, err
	}

	summary, err := l.Summary(record.User, saleType)
	if err != nil {
		return nil, err
	}
	first := summary.TotalUsd.Sign() == 0 && summary.TotalVolume.Sign() == 0
	summary.TotalUsd = new(big.Int).Add(summary.TotalUsd, record.UsdAmount)
	summary.TotalVolume = new(big.Int).Add(summary.TotalVolume, record.TokenVolume)
	stored := &storedSummary{TotalUsd: summary.TotalUsd, TotalVolume: summary.TotalVolume}
	if err := l.store.KVPut(summaryKey(saleType, record.User), stored); err != nil {
		return nil, err
	}
	if first {
		if err := l.contributors(saleType).Add(record.User); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// Summary loads the aggregate totals for a (user, saleType) pair. Missing
// entries read as zero.
func (l *Ledger) Summary(user [20]byte, saleType string) (*ContributorSummary, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return nil, err
	}
	stored := new(storedSummary)
	ok, err := l.store.KVGet(summaryKey(normalized, user), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &ContributorSummary{TotalUsd: big.NewInt(0), TotalVolume: big.NewInt(0)}, nil
	}
	return &ContributorSummary{
		TotalUsd:    cloneBigInt(stored.TotalUsd),
		TotalVolume: cloneBigInt(stored.TotalVolume),
	}, nil
}

// HistoryLen reports the number of contributions recorded for the pair.
func (l *Ledger) HistoryLen(user [20]byte, saleType string) (uint64, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return 0, err
	}
	var count uint64
	if _, err := l.store.KVGet(contribCountKey(normalized, user), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Range returns the contributions in the half-open interval [start, end) of
// the user's history for the sale type.
func (l *Ledger) Range(user [20]byte, saleType string, start, end uint64) ([]*Contribution, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return nil, err
	}
	count, err := l.HistoryLen(user, normalized)
	if err != nil {
		return nil, err
	}
	if start > end || end > count {
		return nil, ErrInvalidRange
	}
	out := make([]*Contribution, 0, end-start)
	for i := start; i < end; i++ {
		stored := new(storedContribution)
		ok, err := l.store.KVGet(contribRecordKey(normalized, user, i), stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("sale: contribution %d missing for %s", i, normalized)
		}
		out = append(out, stored.toContribution())
	}
	return out, nil
}

// ContributorCount reports the number of distinct contributors to a sale type.
func (l *Ledger) ContributorCount(saleType string) (uint64, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return 0, err
	}
	return l.contributors(normalized).Len()
}

// ContributorRange returns the contributor addresses in the half-open interval
// [start, end). Enumeration order is insertion order unless removals have
// occurred.
func (l *Ledger) ContributorRange(saleType string, start, end uint64) ([][20]byte, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return nil, err
	}
	return l.contributors(normalized).Slice(start, end)
}
