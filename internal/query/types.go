package query

import "github.com/google/uuid"

// PositionResponse is one holder's stake in the vault.
type PositionResponse struct {
	Holder        uuid.UUID `json:"holder"`
	Shares        uint64    `json:"shares"`
	Assets        uint64    `json:"assets"` // share value at the projected rate, rounded down
	WalletAssets  uint64    `json:"wallet_assets"`
	SharesDisplay string    `json:"shares_display"`
	AssetsDisplay string    `json:"assets_display"`
	AsOfSequence  int64     `json:"as_of_sequence"`
}

// VaultStatsResponse is the projected pool state.
type VaultStatsResponse struct {
	VaultID       uuid.UUID `json:"vault_id"`
	TotalAssets   uint64    `json:"total_assets"`
	TotalSupply   uint64    `json:"total_supply"`
	TotalDebt     uint64    `json:"total_debt"`
	IdleAssets    uint64    `json:"idle_assets"`
	PricePerShare string    `json:"price_per_share"`
	LastSequence  int64     `json:"last_sequence"`
	AsOfSequence  int64     `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Token         string `json:"token"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// JournalFilter pages through a holder's journal history, newest first.
type JournalFilter struct {
	Limit          int
	BeforeSequence *int64 // exclusive cursor
	AsOfSequence   *int64 // inclusive upper bound
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedTokens []UnbalancedToken `json:"unbalanced_tokens,omitempty"`
}

// UnbalancedToken is a token whose projected balances do not sum to zero.
type UnbalancedToken struct {
	Token     string `json:"token"`
	Imbalance int64  `json:"imbalance"`
}
