package core

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/LeoVS09/simple-yield-farm/internal/observability"
)

var (
	ErrSequenceGap = errors.New("sequence gap")
	ErrOutOfOrder  = errors.New("out-of-order command")
)

// SequenceValidator validates source sequences per partition.
// Not thread-safe: only accessed from the processor goroutine.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	metrics         *observability.Metrics
}

func NewSequenceValidator(metrics *observability.Metrics) *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         metrics,
	}
}

// partitionKind is the label part of "holder:<id>".
func partitionKind(partition string) string {
	kind, _, _ := strings.Cut(partition, ":")
	return kind
}

// ValidateSequence checks source sequence ordering and advances the
// partition on success. Duplicates of already-seen sequences pass.
func (sv *SequenceValidator) ValidateSequence(partition string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		if isDuplicate {
			return nil
		}
		if sv.metrics != nil {
			sv.metrics.EventOutOfOrder.WithLabelValues(partitionKind(partition)).Inc()
		}
		return fmt.Errorf("%w: partition=%s, expected=%d, got=%d",
			ErrOutOfOrder, partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		if isDuplicate {
			// Seen before under a lost LRU entry; do not advance.
			return nil
		}
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	if sv.metrics != nil {
		sv.metrics.EventSequenceGap.WithLabelValues(partitionKind(partition)).Inc()
	}
	return fmt.Errorf("%w: partition=%s, expected=%d, got=%d",
		ErrSequenceGap, partition, expected, sourceSequence)
}

// GetExpectedSequence returns next expected sequence for a partition
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// SetExpectedSequence initializes expected sequence (used during recovery)
func (sv *SequenceValidator) SetExpectedSequence(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// Partitions copies every partition's next expected sequence.
func (sv *SequenceValidator) Partitions() map[string]int64 {
	return maps.Clone(sv.expectedNextSeq)
}
