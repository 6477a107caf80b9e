package scenario

import (
	"encoding/hex"
	"fmt"
	"io"

	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"
)

type StepOutcome struct {
	Index    int
	Op       string
	Holder   string
	Sequence int64
	Reason   string // refusal reason, empty when applied
}

type HolderPosition struct {
	Name   string
	Shares uint64
	Value  uint64 // shares valued at the final rate, rounded down
	Wallet uint64 // unallocated assets
}

// Report is the final state of a scenario run.
type Report struct {
	Name      string
	Vault     VaultSpec
	Commands  int
	Rejected  int
	Steps     []StepOutcome
	Stats     vault.Stats
	Holders   []HolderPosition
	StateHash [32]byte

	units  fpmath.DecimalConfig
	holder map[string]bool
}

// Holder returns the named holder's position.
func (r *Report) Holder(name string) (HolderPosition, bool) {
	for _, h := range r.Holders {
		if h.Name == name {
			return h, true
		}
	}
	return HolderPosition{}, false
}

func (r *Report) check(expect []Expectation) error {
	for _, x := range expect {
		pos, ok := r.Holder(x.Holder)
		if !ok {
			return fmt.Errorf("%w: unknown holder %q", ErrExpectation, x.Holder)
		}
		fields := []struct {
			name, want string
			got        uint64
		}{
			{"shares", x.Shares, pos.Shares},
			{"value", x.Value, pos.Value},
			{"wallet", x.Wallet, pos.Wallet},
		}
		for _, f := range fields {
			if f.want == "" {
				continue
			}
			want, err := r.units.Parse(f.want)
			if err != nil {
				return fmt.Errorf("%w: %s %s: %v", ErrInvalidScenario, x.Holder, f.name, err)
			}
			if f.got != want {
				return fmt.Errorf("%w: %s %s is %s, want %s", ErrExpectation,
					x.Holder, f.name, r.units.Format(f.got), r.units.Format(want))
			}
		}
	}
	return nil
}

// Render writes the report as aligned text with decimal amounts.
func (r *Report) Render(w io.Writer) error {
	f := r.units.Format
	pw := &printer{w: w}

	pw.printf("%-17s%s\n", "scenario", r.Name)
	pw.printf("%-17s%s (%s over %s, %s mode)\n", "vault", r.Vault.Name, r.Vault.Symbol, r.Vault.Asset, r.Vault.Mode)
	pw.printf("%-17s%d (%d rejected)\n", "commands", r.Commands, r.Rejected)
	for _, s := range r.Steps {
		if s.Reason != "" {
			pw.printf("%-17sstep %d %s %s (%s)\n", "rejected", s.Index, s.Op, s.Holder, s.Reason)
		}
	}
	pw.printf("\n")
	pw.printf("%-17s%s\n", "total assets", f(r.Stats.TotalAssets))
	pw.printf("%-17s%s\n", "total supply", f(r.Stats.TotalSupply))
	pw.printf("%-17s%s\n", "total debt", f(r.Stats.TotalDebt))
	pw.printf("%-17s%s\n", "idle assets", f(r.Stats.IdleAssets))
	pw.printf("%-17s%s\n", "price per share", r.units.PricePerShare(r.Stats.TotalAssets, r.Stats.TotalSupply).String())
	pw.printf("\n")
	pw.printf("%-10s %14s %14s %14s\n", "holder", "shares", "value", "wallet")
	for _, h := range r.Holders {
		pw.printf("%-10s %14s %14s %14s\n", h.Name, f(h.Shares), f(h.Value), f(h.Wallet))
	}
	return pw.err
}

// StateHashHex is the processor's final chained state hash.
func (r *Report) StateHashHex() string {
	return hex.EncodeToString(r.StateHash[:])
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
