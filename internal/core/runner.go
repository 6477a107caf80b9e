package core

import (
	"context"

	"github.com/LeoVS09/simple-yield-farm/internal/event"

	"github.com/rs/zerolog"
)

type submission struct {
	ctx   context.Context
	evt   event.Event
	fn    func(*Processor) error
	reply chan reply
}

type reply struct {
	res Result
	err error
}

// Runner owns the processor goroutine. Ingestion and the API submit
// commands through it and wait for the result.
type Runner struct {
	proc             *Processor
	inbox            chan submission
	done             chan struct{}
	snapshotInterval int64
	logger           zerolog.Logger
}

func NewRunner(proc *Processor, buffer int, snapshotInterval int64, logger zerolog.Logger) *Runner {
	return &Runner{
		proc:             proc,
		inbox:            make(chan submission, buffer),
		done:             make(chan struct{}),
		snapshotInterval: snapshotInterval,
		logger:           logger,
	}
}

// Submit queues a command and waits for its outcome.
func (r *Runner) Submit(ctx context.Context, evt event.Event) (Result, error) {
	return r.send(ctx, submission{ctx: ctx, evt: evt, reply: make(chan reply, 1)})
}

// Do runs fn on the processor goroutine, between commands.
func (r *Runner) Do(ctx context.Context, fn func(*Processor) error) error {
	_, err := r.send(ctx, submission{ctx: ctx, fn: fn, reply: make(chan reply, 1)})
	return err
}

func (r *Runner) send(ctx context.Context, s submission) (Result, error) {
	select {
	case r.inbox <- s:
	case <-r.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case rep := <-s.reply:
		return rep.res, rep.err
	case <-r.done:
		select {
		case rep := <-s.reply:
			return rep.res, rep.err
		default:
			return Result{}, ErrStopped
		}
	case <-ctx.Done():
		// The command may still be applied; its result is dropped.
		return Result{}, ctx.Err()
	}
}

// Run serves submissions until ctx is cancelled. Submissions still
// queued at that point fail with ErrStopped.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		close(r.done)
		for {
			select {
			case s := <-r.inbox:
				s.reply <- reply{err: ErrStopped}
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-r.inbox:
			s.reply <- r.serve(s)
		}
	}
}

func (r *Runner) serve(s submission) reply {
	if err := s.ctx.Err(); err != nil {
		return reply{err: err}
	}
	if s.fn != nil {
		return reply{err: s.fn(r.proc)}
	}

	before := r.proc.Sequence()
	res, err := r.proc.Process(s.ctx, s.evt)

	if r.snapshotInterval > 0 && r.proc.Sequence() != before && r.proc.Sequence()%r.snapshotInterval == 0 {
		snap := r.proc.EmitSnapshot()
		r.logger.Info().Int64("seq", snap.Sequence).Msg("snapshot queued")
	}
	return reply{res: res, err: err}
}
