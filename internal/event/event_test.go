package event_test

import (
	"testing"

	"github.com/LeoVS09/simple-yield-farm/internal/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEventType_RoundTrip(t *testing.T) {
	for _, et := range event.EventTypes() {
		parsed, ok := event.ParseEventType(et.String())
		assert.True(t, ok, et.String())
		assert.Equal(t, et, parsed)
	}

	_, ok := event.ParseEventType("TradeFill")
	assert.False(t, ok)
	assert.Equal(t, "Unknown", event.EventTypeUnknown.String())
	assert.Len(t, event.EventTypes(), 11)
}

func TestPartitions(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	cmd := event.Header{CommandID: uuid.MustParse("660e8400-e29b-41d4-a716-446655440001"), Sequence: 3}

	cases := []struct {
		evt  event.Event
		want string
	}{
		{&event.Deposit{Header: cmd, Caller: id}, "holder:" + id.String()},
		{&event.Redeem{Header: cmd, Owner: id}, "holder:" + id.String()},
		{&event.Borrow{Header: cmd, Strategy: id}, "strategy:" + id.String()},
		{&event.AssetCredited{Header: cmd, Bridge: id}, "bridge:" + id.String()},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.evt.Partition(), tc.evt.EventType().String())
		assert.Equal(t, "660e8400-e29b-41d4-a716-446655440001", tc.evt.IdempotencyKey())
		assert.Equal(t, int64(3), tc.evt.SourceSequence())
	}
}
