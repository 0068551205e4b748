package stake

import "math/big"

// YearSeconds is the accrual denominator year used by the reward formula.
const YearSeconds uint64 = 365 * 24 * 60 * 60

// BpsDenominator converts basis points to a fraction.
const BpsDenominator uint64 = 10_000

// Params holds the global staking parameters. AprBps only affects positions
// opened after the change; existing positions keep the rate frozen at
// creation time.
type Params struct {
	AprBps          uint64
	MinStakeSeconds uint64
	MaxStakeSeconds uint64
	Paused          bool
}

// Position is one time-locked stake. Positions are append-only: unstaking
// flips Active to false permanently instead of removing the entry.
type Position struct {
	Principal      *big.Int
	StartTime      int64
	ClaimedRewards *big.Int
	Active         bool
	AprBps         uint64
	DepositedBy    [20]byte
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Principal = cloneBigInt(p.Principal)
	clone.ClaimedRewards = cloneBigInt(p.ClaimedRewards)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

type storedPosition struct {
	Principal      *big.Int
	StartTime      uint64
	ClaimedRewards *big.Int
	Active         bool
	AprBps         uint64
	DepositedBy    [20]byte
}

func (p *Position) toStored() *storedPosition {
	return &storedPosition{
		Principal:      cloneBigInt(p.Principal),
		StartTime:      uint64(p.StartTime),
		ClaimedRewards: cloneBigInt(p.ClaimedRewards),
		Active:         p.Active,
		AprBps:         p.AprBps,
		DepositedBy:    p.DepositedBy,
	}
}

func (s *storedPosition) toPosition() *Position {
	return &Position{
		Principal:      cloneBigInt(s.Principal),
		StartTime:      int64(s.StartTime),
		ClaimedRewards: cloneBigInt(s.ClaimedRewards),
		Active:         s.Active,
		AprBps:         s.AprBps,
		DepositedBy:    s.DepositedBy,
	}
}
