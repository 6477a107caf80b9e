package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/event"

	"github.com/google/uuid"
)

var ErrMalformed = errors.New("malformed command")

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Amounts are
// integer base units of the token.

type headerJSON struct {
	CommandID   uuid.UUID `json:"command_id"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (h headerJSON) header() (event.Header, error) {
	if h.CommandID == uuid.Nil {
		return event.Header{}, fmt.Errorf("%w: command_id is required", ErrMalformed)
	}
	if h.Sequence < 0 {
		return event.Header{}, fmt.Errorf("%w: negative sequence %d", ErrMalformed, h.Sequence)
	}
	return event.Header{
		CommandID: h.CommandID,
		Sequence:  h.Sequence,
		Timestamp: time.UnixMicro(h.TimestampUs).UTC(),
	}, nil
}

func headerToJSON(h event.Header) headerJSON {
	return headerJSON{CommandID: h.CommandID, Sequence: h.Sequence, TimestampUs: h.Timestamp.UnixMicro()}
}

type bridgeJSON struct {
	headerJSON
	Bridge uuid.UUID `json:"bridge"`
	Holder uuid.UUID `json:"holder"`
	Amount uint64    `json:"amount"`
}

type depositJSON struct {
	headerJSON
	Caller   uuid.UUID `json:"caller"`
	Receiver uuid.UUID `json:"receiver"`
	Assets   uint64    `json:"assets"`
}

type mintJSON struct {
	headerJSON
	Caller   uuid.UUID `json:"caller"`
	Receiver uuid.UUID `json:"receiver"`
	Shares   uint64    `json:"shares"`
}

type withdrawJSON struct {
	headerJSON
	Owner      uuid.UUID `json:"owner"`
	Receiver   uuid.UUID `json:"receiver"`
	Assets     uint64    `json:"assets"`
	MaxLossBps uint32    `json:"max_loss_bps"`
}

type redeemJSON struct {
	headerJSON
	Owner      uuid.UUID `json:"owner"`
	Receiver   uuid.UUID `json:"receiver"`
	Shares     uint64    `json:"shares"`
	MaxLossBps uint32    `json:"max_loss_bps"`
}

type shareTransferJSON struct {
	headerJSON
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
	Shares uint64    `json:"shares"`
}

type strategyAmountJSON struct {
	headerJSON
	Strategy uuid.UUID `json:"strategy"`
	Amount   uint64    `json:"amount"`
}

type strategyReportJSON struct {
	headerJSON
	Strategy uuid.UUID `json:"strategy"`
	Gain     uint64    `json:"gain"`
	Loss     uint64    `json:"loss"`
}

type strategyWorkJSON struct {
	headerJSON
	Strategy uuid.UUID `json:"strategy"`
}

// Decode parses a wire payload into a typed command.
func Decode(eventType event.EventType, data []byte) (event.Event, error) {
	switch eventType {
	case event.EventTypeAssetCredited, event.EventTypeAssetDebited:
		var j bridgeJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"bridge": j.Bridge, "holder": j.Holder}); err != nil {
			return nil, err
		}
		if eventType == event.EventTypeAssetDebited {
			return &event.AssetDebited{Header: h, Bridge: j.Bridge, Holder: j.Holder, Amount: j.Amount}, nil
		}
		return &event.AssetCredited{Header: h, Bridge: j.Bridge, Holder: j.Holder, Amount: j.Amount}, nil

	case event.EventTypeDeposit:
		var j depositJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"caller": j.Caller, "receiver": j.Receiver}); err != nil {
			return nil, err
		}
		return &event.Deposit{Header: h, Caller: j.Caller, Receiver: j.Receiver, Assets: j.Assets}, nil

	case event.EventTypeMint:
		var j mintJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"caller": j.Caller, "receiver": j.Receiver}); err != nil {
			return nil, err
		}
		return &event.Mint{Header: h, Caller: j.Caller, Receiver: j.Receiver, Shares: j.Shares}, nil

	case event.EventTypeWithdraw:
		var j withdrawJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"owner": j.Owner, "receiver": j.Receiver}); err != nil {
			return nil, err
		}
		return &event.Withdraw{Header: h, Owner: j.Owner, Receiver: j.Receiver, Assets: j.Assets, MaxLossBps: j.MaxLossBps}, nil

	case event.EventTypeRedeem:
		var j redeemJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"owner": j.Owner, "receiver": j.Receiver}); err != nil {
			return nil, err
		}
		return &event.Redeem{Header: h, Owner: j.Owner, Receiver: j.Receiver, Shares: j.Shares, MaxLossBps: j.MaxLossBps}, nil

	case event.EventTypeShareTransfer:
		var j shareTransferJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"from": j.From, "to": j.To}); err != nil {
			return nil, err
		}
		return &event.ShareTransfer{Header: h, From: j.From, To: j.To, Shares: j.Shares}, nil

	case event.EventTypeBorrow, event.EventTypeRepay:
		var j strategyAmountJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"strategy": j.Strategy}); err != nil {
			return nil, err
		}
		if eventType == event.EventTypeRepay {
			return &event.Repay{Header: h, Strategy: j.Strategy, Amount: j.Amount}, nil
		}
		return &event.Borrow{Header: h, Strategy: j.Strategy, Amount: j.Amount}, nil

	case event.EventTypeStrategyReport:
		var j strategyReportJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"strategy": j.Strategy}); err != nil {
			return nil, err
		}
		if j.Gain > 0 && j.Loss > 0 {
			return nil, fmt.Errorf("%w: report carries both gain and loss", ErrMalformed)
		}
		return &event.StrategyReport{Header: h, Strategy: j.Strategy, Gain: j.Gain, Loss: j.Loss}, nil

	case event.EventTypeStrategyWork:
		var j strategyWorkJSON
		h, err := unmarshal(eventType, data, &j, &j.headerJSON)
		if err != nil {
			return nil, err
		}
		if err := requireIDs(map[string]uuid.UUID{"strategy": j.Strategy}); err != nil {
			return nil, err
		}
		return &event.StrategyWork{Header: h, Strategy: j.Strategy}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

func unmarshal(eventType event.EventType, data []byte, v any, h *headerJSON) (event.Header, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return event.Header{}, fmt.Errorf("%w: parse %s: %v", ErrMalformed, eventType, err)
	}
	return h.header()
}

func requireIDs(ids map[string]uuid.UUID) error {
	for name, id := range ids {
		if id == uuid.Nil {
			return fmt.Errorf("%w: %s is required", ErrMalformed, name)
		}
	}
	return nil
}

// Encode renders a command in the wire format Decode reads. It is the
// payload stored in the event log.
func Encode(evt event.Event) ([]byte, error) {
	var v any
	switch e := evt.(type) {
	case *event.AssetCredited:
		v = bridgeJSON{headerToJSON(e.Header), e.Bridge, e.Holder, e.Amount}
	case *event.AssetDebited:
		v = bridgeJSON{headerToJSON(e.Header), e.Bridge, e.Holder, e.Amount}
	case *event.Deposit:
		v = depositJSON{headerToJSON(e.Header), e.Caller, e.Receiver, e.Assets}
	case *event.Mint:
		v = mintJSON{headerToJSON(e.Header), e.Caller, e.Receiver, e.Shares}
	case *event.Withdraw:
		v = withdrawJSON{headerToJSON(e.Header), e.Owner, e.Receiver, e.Assets, e.MaxLossBps}
	case *event.Redeem:
		v = redeemJSON{headerToJSON(e.Header), e.Owner, e.Receiver, e.Shares, e.MaxLossBps}
	case *event.ShareTransfer:
		v = shareTransferJSON{headerToJSON(e.Header), e.From, e.To, e.Shares}
	case *event.Borrow:
		v = strategyAmountJSON{headerToJSON(e.Header), e.Strategy, e.Amount}
	case *event.Repay:
		v = strategyAmountJSON{headerToJSON(e.Header), e.Strategy, e.Amount}
	case *event.StrategyReport:
		v = strategyReportJSON{headerToJSON(e.Header), e.Strategy, e.Gain, e.Loss}
	case *event.StrategyWork:
		v = strategyWorkJSON{headerToJSON(e.Header), e.Strategy}
	default:
		return nil, fmt.Errorf("encode: unsupported command %T", evt)
	}
	return json.Marshal(v)
}

// SubjectToken is the snake_case name of an event type used in subjects,
// e.g. StrategyReport -> "strategy_report".
func SubjectToken(et event.EventType) string {
	name := et.String()
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// ParseSubjectToken is the inverse of SubjectToken.
func ParseSubjectToken(token string) (event.EventType, bool) {
	for _, et := range event.EventTypes() {
		if SubjectToken(et) == token {
			return et, true
		}
	}
	return event.EventTypeUnknown, false
}

// EventTypeFromSubject reads the command type from a subject of the form
// <prefix>.<type>[.<anything>].
func EventTypeFromSubject(prefix, subject string) (event.EventType, error) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("subject %q outside %q", subject, prefix)
	}
	token, _, _ := strings.Cut(rest, ".")
	et, ok := ParseSubjectToken(token)
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("subject %q: unknown command %q", subject, token)
	}
	return et, nil
}
