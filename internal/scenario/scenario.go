// Package scenario replays a scripted sequence of vault commands in
// process and reports the resulting positions.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Step operations.
const (
	OpCredit   = "credit"
	OpDebit    = "debit"
	OpDeposit  = "deposit"
	OpMint     = "mint"
	OpWithdraw = "withdraw"
	OpRedeem   = "redeem"
	OpTransfer = "transfer"
	OpBorrow   = "borrow"
	OpRepay    = "repay"
	OpReport   = "report"
	OpWork     = "work"
)

type Scenario struct {
	Name     string        `yaml:"name"`
	Vault    VaultSpec     `yaml:"vault"`
	Strategy string        `yaml:"strategy"` // none | simulated
	Steps    []Step        `yaml:"steps"`
	Expect   []Expectation `yaml:"expect"`
}

type VaultSpec struct {
	Name       string `yaml:"name"`
	Symbol     string `yaml:"symbol"`
	Asset      string `yaml:"asset"`
	Decimals   int32  `yaml:"decimals"`
	Mode       string `yaml:"mode"`
	ReserveBps uint32 `yaml:"reserve_bps"`
}

// Step is one command. Amounts are decimals in whole tokens; Amount is
// assets or shares depending on Op. Reject names the refusal reason the
// step must end with; without it any refusal fails the run.
type Step struct {
	Op         string `yaml:"op"`
	Holder     string `yaml:"holder"`
	To         string `yaml:"to"`
	Amount     string `yaml:"amount"`
	Gain       string `yaml:"gain"`
	Loss       string `yaml:"loss"`
	MaxLossBps uint32 `yaml:"max_loss_bps"`
	Reject     string `yaml:"reject"`
}

// Expectation pins a holder's final position. Empty fields are not checked.
type Expectation struct {
	Holder string `yaml:"holder"`
	Shares string `yaml:"shares"`
	Value  string `yaml:"value"`
	Wallet string `yaml:"wallet"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a scenario, rejecting unknown fields.
func Decode(r io.Reader) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidScenario)
	}
	if sc.Vault.Symbol == "" || sc.Vault.Asset == "" || sc.Vault.Symbol == sc.Vault.Asset {
		return fmt.Errorf("%w: vault needs distinct share and asset symbols", ErrInvalidScenario)
	}
	if _, err := vault.ParseMode(sc.Vault.Mode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	switch sc.Strategy {
	case "", "none", "simulated":
	default:
		return fmt.Errorf("%w: strategy %q", ErrInvalidScenario, sc.Strategy)
	}

	for i, st := range sc.Steps {
		switch st.Op {
		case OpCredit, OpDebit, OpDeposit, OpMint, OpWithdraw, OpRedeem:
			if st.Holder == "" || st.Amount == "" {
				return fmt.Errorf("%w: step %d: %s needs holder and amount", ErrInvalidScenario, i, st.Op)
			}
		case OpTransfer:
			if st.Holder == "" || st.To == "" || st.Amount == "" {
				return fmt.Errorf("%w: step %d: transfer needs holder, to and amount", ErrInvalidScenario, i)
			}
		case OpBorrow, OpRepay, OpReport, OpWork:
			if sc.Strategy != "simulated" {
				return fmt.Errorf("%w: step %d: %s needs a simulated strategy", ErrInvalidScenario, i, st.Op)
			}
			if (st.Op == OpBorrow || st.Op == OpRepay) && st.Amount == "" {
				return fmt.Errorf("%w: step %d: %s needs amount", ErrInvalidScenario, i, st.Op)
			}
		default:
			return fmt.Errorf("%w: step %d: unknown op %q", ErrInvalidScenario, i, st.Op)
		}
	}
	return nil
}
