package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/event"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
	"github.com/LeoVS09/simple-yield-farm/internal/observability"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/rs/zerolog"
)

const defaultInvariantInterval = 1000

// PayloadEncoder renders a command for the event log.
type PayloadEncoder func(event.Event) ([]byte, error)

// Reporter is a strategy that books its own gains and losses.
type Reporter interface {
	Report(ctx context.Context, gain, loss uint64) error
}

// Worker is a strategy that borrows available credit on demand.
type Worker interface {
	Work(ctx context.Context) (uint64, error)
}

// CoreOutput is what one processed command hands to the workers.
type CoreOutput struct {
	Envelope *event.EventEnvelope
	Batch    *ledger.Batch // nil when nothing was posted
	Stats    *vault.Stats  // nil when the pool could not be read

	// Set only on snapshot outputs, which carry no Envelope.
	Snapshot *SnapshotState
}

// Result is the outcome returned to the submitter.
type Result struct {
	Sequence  int64
	EventType event.EventType
	Duplicate bool
	Rejection string

	Shares    uint64
	Assets    uint64
	Loss      uint64
	Delivered uint64
	Pulled    uint64
	Repaid    uint64

	StateHash [32]byte
}

type Options struct {
	StartSequence     int64
	LRUCapacity       int
	DBChecker         DBIdempotencyChecker
	Encode            PayloadEncoder
	Metrics           *observability.Metrics
	Logger            zerolog.Logger
	InvariantInterval int64
}

// Processor applies commands to the vault one at a time. It is not safe
// for concurrent use; Runner serialises callers onto one goroutine.
type Processor struct {
	sequence          int64
	hasher            *StateHasher
	book              *ledger.Book
	vault             *vault.Vault
	asset             *ledger.Token
	units             fpmath.DecimalConfig
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	encode            PayloadEncoder
	metrics           *observability.Metrics
	logger            zerolog.Logger
	invariantInterval int64

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

func NewProcessor(
	book *ledger.Book,
	v *vault.Vault,
	persistChan, projectionChan chan<- CoreOutput,
	opts Options,
) (*Processor, error) {
	cfg := v.Config()
	asset, ok := book.Token(ledger.Symbol(cfg.Asset))
	if !ok {
		return nil, fmt.Errorf("%w: asset %s", ledger.ErrUnknownToken, cfg.Asset)
	}
	if opts.Encode == nil {
		return nil, fmt.Errorf("%w: payload encoder is required", ErrInvalidCommand)
	}
	if opts.LRUCapacity <= 0 {
		opts.LRUCapacity = 1_000_000
	}
	if opts.InvariantInterval <= 0 {
		opts.InvariantInterval = defaultInvariantInterval
	}
	logger := opts.Logger.With().Str("vault", cfg.Symbol).Logger()

	return &Processor{
		sequence:          opts.StartSequence,
		hasher:            NewStateHasher(),
		book:              book,
		vault:             v,
		asset:             asset,
		units:             fpmath.DecimalConfig{Decimals: cfg.Decimals},
		idempotency:       NewIdempotencyChecker(opts.LRUCapacity, opts.DBChecker, opts.Metrics, logger),
		sequenceValidator: NewSequenceValidator(opts.Metrics),
		encode:            opts.Encode,
		metrics:           opts.Metrics,
		logger:            logger,
		invariantInterval: opts.InvariantInterval,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}, nil
}

// Process runs one command through the pipeline: dedup, ordering,
// dispatch, journal drain, hash chain, emit. A refused command still
// consumes its source sequence and is logged with its rejection; the
// returned error is then the refusal itself.
func (c *Processor) Process(ctx context.Context, evt event.Event) (Result, error) {
	res, rejected, err := c.apply(ctx, evt, nil)
	if err != nil {
		return res, err
	}
	return res, rejected
}

// Replay re-applies a logged command during recovery and checks that it
// reproduces the logged state hash. Rejections are expected and not errors.
func (c *Processor) Replay(ctx context.Context, env *event.EventEnvelope, evt event.Event) error {
	_, _, err := c.apply(ctx, evt, env)
	return err
}

func (c *Processor) apply(ctx context.Context, evt event.Event, logged *event.EventEnvelope) (Result, error, error) {
	start := time.Now()
	eventType := evt.EventType()
	typeName := eventType.String()
	key := evt.IdempotencyKey()
	partition := evt.Partition()
	res := Result{EventType: eventType}

	payload, err := c.encode(evt)
	if err != nil {
		return res, nil, fmt.Errorf("encode %s: %w", typeName, err)
	}

	if logged == nil {
		isDuplicate := c.idempotency.IsDuplicate(ctx, typeName, key)
		if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), isDuplicate); err != nil {
			c.recordRejected(typeName, err)
			return res, nil, err
		}
		if isDuplicate {
			c.recordRejected(typeName, nil)
			res.Duplicate = true
			return res, nil, nil
		}
	} else {
		if logged.Sequence != c.sequence {
			return res, nil, fmt.Errorf("%w: log has sequence %d, processor is at %d",
				ErrReplayDivergence, logged.Sequence, c.sequence)
		}
		c.sequenceValidator.SetExpectedSequence(partition, evt.SourceSequence()+1)
	}

	c.book.Begin(key, c.sequence, evt.OccurredAt().UnixMicro())
	rejected := c.dispatch(ctx, evt, &res)

	// Rolled-back postings stay in the batch so the journal matches balances.
	batch := c.book.Drain()
	if batch != nil {
		if err := batch.Validate(); err != nil {
			panic(fmt.Sprintf("FATAL: malformed batch: %v", err))
		}
		if c.metrics != nil {
			for _, j := range batch.Journals {
				c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}

	if rejected != nil {
		res.Rejection = rejected.Error()
	}
	if err := c.postCheckInvariants(rejected != nil); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	hashStart := time.Now()
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, c.computeStateDigest(batch, res.Rejection))
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: key,
		EventType:      eventType,
		Partition:      partition,
		Timestamp:      evt.OccurredAt(),
		SourceSequence: evt.SourceSequence(),
		Payload:        payload,
		Rejection:      res.Rejection,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	res.Sequence = c.sequence
	res.StateHash = stateHash

	if logged != nil && (logged.StateHash != stateHash || logged.Rejection != res.Rejection) {
		return res, rejected, fmt.Errorf("%w: sequence %d hash %x, logged %x (rejection %q, logged %q)",
			ErrReplayDivergence, c.sequence, stateHash, logged.StateHash, res.Rejection, logged.Rejection)
	}

	stats := c.readStats(ctx)
	if logged == nil {
		c.emit(CoreOutput{Envelope: envelope, Batch: batch, Stats: stats})
	}

	c.idempotency.MarkProcessed(typeName, key)
	c.sequence++

	if rejected != nil {
		c.recordRejected(typeName, rejected)
		c.logger.Info().
			Int64("seq", res.Sequence).
			Str("event_type", typeName).
			Str("key", key).
			Err(rejected).
			Msg("command rejected")
	} else if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(typeName).Inc()
	}
	if c.metrics != nil {
		c.metrics.CoreEventDuration.WithLabelValues(typeName).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}
	return res, rejected, nil
}

func (c *Processor) recordRejected(eventType string, err error) {
	if c.metrics == nil {
		return
	}
	reason := "duplicate"
	if err != nil {
		reason = RejectionReason(err)
	}
	c.metrics.CoreEventsRejected.WithLabelValues(eventType, reason).Inc()
}

// emit sends to persistence (blocking, never drops) and to projections
// (non-blocking, drops when full).
func (c *Processor) emit(out CoreOutput) {
	select {
	case c.persistChan <- out:
	default:
		if c.metrics != nil {
			c.metrics.PersistBackpressure.Inc()
		}
		c.persistChan <- out
	}

	if c.projectionChan != nil {
		select {
		case c.projectionChan <- out:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("all").Inc()
			}
		}
	}

	if c.metrics != nil {
		c.metrics.SetChannelMetrics("persist", len(c.persistChan), cap(c.persistChan))
		if c.projectionChan != nil {
			c.metrics.SetChannelMetrics("projection", len(c.projectionChan), cap(c.projectionChan))
		}
	}
}

// readStats reads the pool for projections and gauges. A failed read
// (e.g. an unreachable remote strategy in live mode) only skips them.
func (c *Processor) readStats(ctx context.Context) *vault.Stats {
	stats, err := c.vault.Stats(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("read vault stats")
		return nil
	}
	if c.metrics != nil {
		price, _ := c.units.PricePerShare(stats.TotalAssets, stats.TotalSupply).Float64()
		c.metrics.SetVaultStats(stats.TotalAssets, stats.TotalSupply, stats.TotalDebt, stats.IdleAssets, price)
	}
	return &stats
}

// computeStateDigest creates canonical bytes for the state hash: every
// account the batch touched with its new balance, the vault debt and the
// rejection text.
func (c *Processor) computeStateDigest(batch *ledger.Batch, rejection string) []byte {
	affected := make(map[ledger.AccountKey]bool)
	if batch != nil {
		for _, j := range batch.Journals {
			affected[j.DebitAccount] = true
			affected[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64+16+len(rejection))
	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, path...)
		digest = appendInt64LE(digest, c.book.Balance(key))
	}

	digest = appendInt64LE(digest, int64(c.vault.TotalDebt()))
	digest = append(digest, byte(len(rejection)), byte(len(rejection)>>8))
	digest = append(digest, rejection...)
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants runs the full ledger check after every rollback and
// periodically otherwise.
func (c *Processor) postCheckInvariants(rolledBack bool) error {
	if !rolledBack && (c.sequence == 0 || c.sequence%c.invariantInterval != 0) {
		return nil
	}
	if err := c.book.Validate(); err != nil {
		return fmt.Errorf("post-check at seq %d: %w", c.sequence, err)
	}
	return nil
}

// Sequence returns the next global sequence to assign.
func (c *Processor) Sequence() int64 {
	return c.sequence
}

// StateHash returns the current state hash (chain tip).
func (c *Processor) StateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// Vault exposes the vault for read-only views.
func (c *Processor) Vault() *vault.Vault {
	return c.vault
}

// Book exposes the ledger for read-only views.
func (c *Processor) Book() *ledger.Book {
	return c.book
}
