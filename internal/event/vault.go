package event

import "github.com/google/uuid"

type Deposit struct {
	Header
	Caller   uuid.UUID
	Receiver uuid.UUID
	Assets   uint64
}

func (d *Deposit) EventType() EventType { return EventTypeDeposit }
func (d *Deposit) Partition() string    { return HolderPartition(d.Caller) }

type Mint struct {
	Header
	Caller   uuid.UUID
	Receiver uuid.UUID
	Shares   uint64
}

func (m *Mint) EventType() EventType { return EventTypeMint }
func (m *Mint) Partition() string    { return HolderPartition(m.Caller) }

type Withdraw struct {
	Header
	Owner      uuid.UUID
	Receiver   uuid.UUID
	Assets     uint64
	MaxLossBps uint32
}

func (w *Withdraw) EventType() EventType { return EventTypeWithdraw }
func (w *Withdraw) Partition() string    { return HolderPartition(w.Owner) }

type Redeem struct {
	Header
	Owner      uuid.UUID
	Receiver   uuid.UUID
	Shares     uint64
	MaxLossBps uint32
}

func (r *Redeem) EventType() EventType { return EventTypeRedeem }
func (r *Redeem) Partition() string    { return HolderPartition(r.Owner) }

type ShareTransfer struct {
	Header
	From   uuid.UUID
	To     uuid.UUID
	Shares uint64
}

func (s *ShareTransfer) EventType() EventType { return EventTypeShareTransfer }
func (s *ShareTransfer) Partition() string    { return HolderPartition(s.From) }
