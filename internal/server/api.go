package server

import (
	"encoding/json"

	"github.com/LeoVS09/simple-yield-farm/internal/query"
)

// SubmitCommandRequest carries one command in the ingestion wire format.
// Type is the snake_case command name, e.g. "deposit".
type SubmitCommandRequest struct {
	Type    string          `json:"type"`
	Command json.RawMessage `json:"command"`
}

// SubmitCommandResponse is the processor's outcome. A refused command is
// still logged, so it is reported with Rejection set and a sequence.
type SubmitCommandResponse struct {
	Sequence  int64  `json:"sequence"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Rejection string `json:"rejection,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Shares    uint64 `json:"shares,omitempty"`
	Assets    uint64 `json:"assets,omitempty"`
	Loss      uint64 `json:"loss,omitempty"`
	Delivered uint64 `json:"delivered,omitempty"`
	Pulled    uint64 `json:"pulled,omitempty"`
	Repaid    uint64 `json:"repaid,omitempty"`
	StateHash string `json:"state_hash,omitempty"`
}

type GetPositionRequest struct {
	Holder string `json:"holder"`
}

type GetVaultStatsRequest struct{}

type ListJournalsRequest struct {
	Holder         string `json:"holder"`
	PageSize       int    `json:"page_size"`
	BeforeSequence *int64 `json:"before_sequence,omitempty"`
	AsOfSequence   *int64 `json:"as_of_sequence,omitempty"`
}

type ListJournalsResponse struct {
	Journals []query.JournalHistoryEntry `json:"journals"`
}

// PreviewRequest asks what an operation would yield right now. Amount is
// a decimal in whole tokens ("1.5"); Owner is needed for the max_* views.
type PreviewRequest struct {
	Operation string `json:"operation"`
	Amount    string `json:"amount,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

type PreviewResponse struct {
	Operation     string `json:"operation"`
	Result        uint64 `json:"result"`
	ResultDisplay string `json:"result_display"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

type TakeSnapshotRequest struct{}

type TakeSnapshotResponse struct {
	Sequence int64 `json:"sequence"`
}

type RebuildProjectionsRequest struct{}

type RebuildProjectionsResponse struct {
	LastSequence int64 `json:"last_sequence"`
}

type GetEventLogInfoRequest struct{}

type GetEventLogInfoResponse struct {
	LastPersistedSequence int64  `json:"last_persisted_sequence"`
	NextSequence          int64  `json:"next_sequence"`
	StateHash             string `json:"state_hash"`
}

type VerifyIntegrityRequest struct{}
