package event

import "github.com/google/uuid"

type Borrow struct {
	Header
	Strategy uuid.UUID
	Amount   uint64
}

func (b *Borrow) EventType() EventType { return EventTypeBorrow }
func (b *Borrow) Partition() string    { return StrategyPartition(b.Strategy) }

type Repay struct {
	Header
	Strategy uuid.UUID
	Amount   uint64
}

func (r *Repay) EventType() EventType { return EventTypeRepay }
func (r *Repay) Partition() string    { return StrategyPartition(r.Strategy) }

// StrategyReport books a harvest (Gain) or a write-down (Loss) on the
// strategy's holdings. At most one of the two is non-zero.
type StrategyReport struct {
	Header
	Strategy uuid.UUID
	Gain     uint64
	Loss     uint64
}

func (s *StrategyReport) EventType() EventType { return EventTypeStrategyReport }
func (s *StrategyReport) Partition() string    { return StrategyPartition(s.Strategy) }

// StrategyWork asks the strategy to borrow all available credit.
type StrategyWork struct {
	Header
	Strategy uuid.UUID
}

func (s *StrategyWork) EventType() EventType { return EventTypeStrategyWork }
func (s *StrategyWork) Partition() string    { return StrategyPartition(s.Strategy) }
