package event

import "github.com/google/uuid"

// AssetCredited brings underlying assets onto the book for a holder,
// as confirmed by an external bridge.
type AssetCredited struct {
	Header
	Bridge uuid.UUID
	Holder uuid.UUID
	Amount uint64
}

func (a *AssetCredited) EventType() EventType { return EventTypeAssetCredited }
func (a *AssetCredited) Partition() string    { return BridgePartition(a.Bridge) }

// AssetDebited takes underlying assets off the book when a holder leaves
// through the bridge.
type AssetDebited struct {
	Header
	Bridge uuid.UUID
	Holder uuid.UUID
	Amount uint64
}

func (a *AssetDebited) EventType() EventType { return EventTypeAssetDebited }
func (a *AssetDebited) Partition() string    { return BridgePartition(a.Bridge) }
