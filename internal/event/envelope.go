package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeAssetCredited
	EventTypeAssetDebited
	EventTypeDeposit
	EventTypeMint
	EventTypeWithdraw
	EventTypeRedeem
	EventTypeShareTransfer
	EventTypeBorrow
	EventTypeRepay
	EventTypeStrategyReport
	EventTypeStrategyWork
)

var eventTypeNames = map[EventType]string{
	EventTypeAssetCredited:  "AssetCredited",
	EventTypeAssetDebited:   "AssetDebited",
	EventTypeDeposit:        "Deposit",
	EventTypeMint:           "Mint",
	EventTypeWithdraw:       "Withdraw",
	EventTypeRedeem:         "Redeem",
	EventTypeShareTransfer:  "ShareTransfer",
	EventTypeBorrow:         "Borrow",
	EventTypeRepay:          "Repay",
	EventTypeStrategyReport: "StrategyReport",
	EventTypeStrategyWork:   "StrategyWork",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// ParseEventType is the inverse of String.
func ParseEventType(name string) (EventType, bool) {
	for et, n := range eventTypeNames {
		if n == name {
			return et, true
		}
	}
	return EventTypeUnknown, false
}

// EventTypes lists every known type in declaration order.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(eventTypeNames))
	for et := EventTypeAssetCredited; et <= EventTypeStrategyWork; et++ {
		out = append(out, et)
	}
	return out
}

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Ordering scope of SourceSequence
	Partition string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded command
	Payload []byte
	// Why the command was refused; empty when it was applied
	Rejection string

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all commands must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Partition returns the ordering scope for SourceSequence
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// OccurredAt returns the versioned input timestamp
	OccurredAt() time.Time
}

// Header carries the fields every command shares.
type Header struct {
	CommandID uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (h Header) IdempotencyKey() string { return h.CommandID.String() }
func (h Header) SourceSequence() int64  { return h.Sequence }
func (h Header) OccurredAt() time.Time  { return h.Timestamp }

func HolderPartition(id uuid.UUID) string   { return "holder:" + id.String() }
func StrategyPartition(id uuid.UUID) string { return "strategy:" + id.String() }
func BridgePartition(id uuid.UUID) string   { return "bridge:" + id.String() }
