package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/event"
	"github.com/LeoVS09/simple-yield-farm/internal/ingestion"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
	"github.com/LeoVS09/simple-yield-farm/internal/strategy"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrExpectation = errors.New("scenario expectation failed")

// namespace seeds the name-based ids, so a scenario always produces the
// same accounts and command ids.
var namespace = uuid.MustParse("3d5e6f1a-8c2b-4f7e-9a10-5b4c3d2e1f00")

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func nameID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(kind+"/"+name))
}

type engine struct {
	proc     *core.Processor
	vault    *vault.Vault
	asset    *ledger.Token
	units    fpmath.DecimalConfig
	bridge   uuid.UUID
	strategy uuid.UUID
	seqs     map[string]int64
	persist  chan core.CoreOutput
}

// Run executes every step through a fresh processor and checks the
// scenario's expectations against the final state.
func Run(ctx context.Context, sc *Scenario, logger zerolog.Logger) (*Report, error) {
	e, err := newEngine(ctx, sc, logger)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Name:   sc.Name,
		Vault:  sc.Vault,
		units:  e.units,
		holder: make(map[string]bool),
	}
	if report.Vault.Mode == "" {
		report.Vault.Mode = string(vault.ModeDebt)
	}

	for i, st := range sc.Steps {
		res, err := e.step(ctx, i, st)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, st.Op, err)
		}
		// Drain so the persist channel never blocks the processor.
		for len(e.persist) > 0 {
			<-e.persist
		}

		outcome := StepOutcome{Index: i, Op: st.Op, Holder: st.Holder, Sequence: res.Sequence, Reason: res.reason}
		report.Steps = append(report.Steps, outcome)
		report.Commands++
		if res.reason != "" {
			report.Rejected++
		}
		if st.Reject != res.reason {
			return nil, fmt.Errorf("%w: step %d (%s) refused with %q, want %q",
				ErrExpectation, i, st.Op, res.reason, st.Reject)
		}
		for _, name := range []string{st.Holder, st.To} {
			if name != "" {
				report.holder[name] = true
			}
		}
	}

	if err := e.fill(ctx, report); err != nil {
		return nil, err
	}
	if err := report.check(sc.Expect); err != nil {
		return nil, err
	}
	return report, nil
}

func newEngine(ctx context.Context, sc *Scenario, logger zerolog.Logger) (*engine, error) {
	mode, err := vault.ParseMode(sc.Vault.Mode)
	if err != nil {
		return nil, err
	}
	name := sc.Vault.Name
	if name == "" {
		name = sc.Vault.Symbol
	}

	book := ledger.NewBook()
	asset, err := book.Issue(ledger.Symbol(sc.Vault.Asset), sc.Vault.Decimals)
	if err != nil {
		return nil, err
	}
	shares, err := book.Issue(ledger.Symbol(sc.Vault.Symbol), sc.Vault.Decimals)
	if err != nil {
		return nil, err
	}

	vaultID := nameID("vault", sc.Name)
	v, err := vault.New(vault.Config{
		ID:         vaultID,
		Name:       name,
		Symbol:     sc.Vault.Symbol,
		Asset:      sc.Vault.Asset,
		Decimals:   sc.Vault.Decimals,
		Mode:       mode,
		ReserveBps: sc.Vault.ReserveBps,
	}, shares, ledger.NewCustody(asset, vaultID), logger)
	if err != nil {
		return nil, err
	}

	e := &engine{
		vault:    v,
		asset:    asset,
		units:    fpmath.DecimalConfig{Decimals: sc.Vault.Decimals},
		bridge:   nameID("bridge", sc.Name),
		strategy: nameID("strategy", sc.Name),
		seqs:     make(map[string]int64),
		persist:  make(chan core.CoreOutput, 4),
	}

	if sc.Strategy == "simulated" {
		sim := strategy.NewSimulated(e.strategy, asset, vaultID, logger)
		sim.Attach(v)
		if err := v.SetStrategy(ctx, sim); err != nil {
			return nil, err
		}
	}

	e.proc, err = core.NewProcessor(book, v, e.persist, nil, core.Options{
		Encode:            ingestion.Encode,
		Logger:            logger,
		InvariantInterval: 1,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

type stepResult struct {
	core.Result
	reason string
}

func (e *engine) step(ctx context.Context, i int, st Step) (stepResult, error) {
	amount, err := e.amount(st.Amount)
	if err != nil {
		return stepResult{}, err
	}
	gain, err := e.amount(st.Gain)
	if err != nil {
		return stepResult{}, err
	}
	loss, err := e.amount(st.Loss)
	if err != nil {
		return stepResult{}, err
	}
	holder := nameID("holder", st.Holder)

	var build func(h event.Header) event.Event
	switch st.Op {
	case OpCredit:
		build = func(h event.Header) event.Event {
			return &event.AssetCredited{Header: h, Bridge: e.bridge, Holder: holder, Amount: amount}
		}
	case OpDebit:
		build = func(h event.Header) event.Event {
			return &event.AssetDebited{Header: h, Bridge: e.bridge, Holder: holder, Amount: amount}
		}
	case OpDeposit:
		build = func(h event.Header) event.Event {
			return &event.Deposit{Header: h, Caller: holder, Receiver: holder, Assets: amount}
		}
	case OpMint:
		build = func(h event.Header) event.Event {
			return &event.Mint{Header: h, Caller: holder, Receiver: holder, Shares: amount}
		}
	case OpWithdraw:
		build = func(h event.Header) event.Event {
			return &event.Withdraw{Header: h, Owner: holder, Receiver: holder, Assets: amount, MaxLossBps: st.MaxLossBps}
		}
	case OpRedeem:
		build = func(h event.Header) event.Event {
			return &event.Redeem{Header: h, Owner: holder, Receiver: holder, Shares: amount, MaxLossBps: st.MaxLossBps}
		}
	case OpTransfer:
		to := nameID("holder", st.To)
		build = func(h event.Header) event.Event {
			return &event.ShareTransfer{Header: h, From: holder, To: to, Shares: amount}
		}
	case OpBorrow:
		build = func(h event.Header) event.Event {
			return &event.Borrow{Header: h, Strategy: e.strategy, Amount: amount}
		}
	case OpRepay:
		build = func(h event.Header) event.Event {
			return &event.Repay{Header: h, Strategy: e.strategy, Amount: amount}
		}
	case OpReport:
		build = func(h event.Header) event.Event {
			return &event.StrategyReport{Header: h, Strategy: e.strategy, Gain: gain, Loss: loss}
		}
	case OpWork:
		build = func(h event.Header) event.Event {
			return &event.StrategyWork{Header: h, Strategy: e.strategy}
		}
	default:
		return stepResult{}, fmt.Errorf("%w: unknown op %q", ErrInvalidScenario, st.Op)
	}

	partition := build(event.Header{}).Partition()
	evt := build(event.Header{
		CommandID: nameID("command", fmt.Sprintf("%d", i)),
		Sequence:  e.seqs[partition],
		Timestamp: epoch.Add(time.Duration(i) * time.Second),
	})

	res, err := e.proc.Process(ctx, evt)
	if err != nil && res.Rejection == "" {
		return stepResult{}, err
	}
	e.seqs[partition]++

	out := stepResult{Result: res}
	if err != nil {
		out.reason = core.RejectionReason(err)
	}
	return out, nil
}

func (e *engine) amount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return e.units.Parse(s)
}

func (e *engine) fill(ctx context.Context, r *Report) error {
	stats, err := e.vault.Stats(ctx)
	if err != nil {
		return err
	}
	r.Stats = stats
	r.StateHash = e.proc.StateHash()

	names := make([]string, 0, len(r.holder))
	for name := range r.holder {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := nameID("holder", name)
		shares, err := e.vault.BalanceOf(ctx, id)
		if err != nil {
			return err
		}
		value, err := e.vault.MaxWithdraw(ctx, id)
		if err != nil {
			return err
		}
		wallet, err := e.asset.BalanceOf(ctx, id)
		if err != nil {
			return err
		}
		r.Holders = append(r.Holders, HolderPosition{Name: name, Shares: shares, Value: value, Wallet: wallet})
	}
	return nil
}
