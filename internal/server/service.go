package server

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/event"
	"github.com/LeoVS09/simple-yield-farm/internal/ingestion"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
	"github.com/LeoVS09/simple-yield-farm/internal/projection"
	"github.com/LeoVS09/simple-yield-farm/internal/query"
	"github.com/LeoVS09/simple-yield-farm/internal/strategy"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "yieldvault.v1.VaultService"

// VaultServiceServer is the server API for yieldvault.v1.VaultService.
type VaultServiceServer interface {
	SubmitCommand(context.Context, *SubmitCommandRequest) (*SubmitCommandResponse, error)
	GetPosition(context.Context, *GetPositionRequest) (*query.PositionResponse, error)
	GetVaultStats(context.Context, *GetVaultStatsRequest) (*query.VaultStatsResponse, error)
	ListJournals(context.Context, *ListJournalsRequest) (*ListJournalsResponse, error)
	Preview(context.Context, *PreviewRequest) (*PreviewResponse, error)
	TakeSnapshot(context.Context, *TakeSnapshotRequest) (*TakeSnapshotResponse, error)
	RebuildProjections(context.Context, *RebuildProjectionsRequest) (*RebuildProjectionsResponse, error)
	GetEventLogInfo(context.Context, *GetEventLogInfoRequest) (*GetEventLogInfoResponse, error)
	VerifyIntegrity(context.Context, *VerifyIntegrityRequest) (*query.IntegrityReport, error)
}

// VaultService_ServiceDesc is registered on a grpc.Server by hand; the
// messages travel through the JSON codec.
var VaultService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitCommand", VaultServiceServer.SubmitCommand),
		unary("GetPosition", VaultServiceServer.GetPosition),
		unary("GetVaultStats", VaultServiceServer.GetVaultStats),
		unary("ListJournals", VaultServiceServer.ListJournals),
		unary("Preview", VaultServiceServer.Preview),
		unary("TakeSnapshot", VaultServiceServer.TakeSnapshot),
		unary("RebuildProjections", VaultServiceServer.RebuildProjections),
		unary("GetEventLogInfo", VaultServiceServer.GetEventLogInfo),
		unary("VerifyIntegrity", VaultServiceServer.VerifyIntegrity),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "yieldvault/v1/vault.json",
}

func unary[Req, Resp any](name string, call func(VaultServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(VaultServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(VaultServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Engine is the processor goroutine as seen by the API. *core.Runner
// implements it.
type Engine interface {
	Submit(ctx context.Context, evt event.Event) (core.Result, error)
	Do(ctx context.Context, fn func(*core.Processor) error) error
}

// SequenceSource reports the last persisted sequence.
type SequenceSource interface {
	GetLatestSequence(ctx context.Context) (int64, error)
}

// vaultService implements VaultServiceServer on top of the engine and the
// read side.
type vaultService struct {
	engine  Engine
	queries *query.QueryService
	log     SequenceSource
	db      *sql.DB
	vaultID uuid.UUID
	units   fpmath.DecimalConfig
	logger  zerolog.Logger
}

func (s *vaultService) SubmitCommand(ctx context.Context, req *SubmitCommandRequest) (*SubmitCommandResponse, error) {
	et, ok := ingestion.ParseSubjectToken(strings.ToLower(req.Type))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown command type %q", req.Type)
	}
	evt, err := ingestion.Decode(et, req.Command)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.engine.Submit(ctx, evt)
	if err != nil && res.Rejection == "" {
		return nil, toStatus(err)
	}

	resp := &SubmitCommandResponse{
		Sequence:  res.Sequence,
		Duplicate: res.Duplicate,
		Rejection: res.Rejection,
		Shares:    res.Shares,
		Assets:    res.Assets,
		Loss:      res.Loss,
		Delivered: res.Delivered,
		Pulled:    res.Pulled,
		Repaid:    res.Repaid,
	}
	if err != nil {
		resp.Reason = core.RejectionReason(err)
	}
	if !res.Duplicate {
		resp.StateHash = hex.EncodeToString(res.StateHash[:])
	}
	return resp, nil
}

func (s *vaultService) GetPosition(ctx context.Context, req *GetPositionRequest) (*query.PositionResponse, error) {
	holder, err := parseID("holder", req.Holder)
	if err != nil {
		return nil, err
	}
	pos, err := s.queries.GetPosition(ctx, holder)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get position: %v", err)
	}
	return pos, nil
}

func (s *vaultService) GetVaultStats(ctx context.Context, _ *GetVaultStatsRequest) (*query.VaultStatsResponse, error) {
	stats, err := s.queries.GetVaultStats(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get vault stats: %v", err)
	}
	return stats, nil
}

func (s *vaultService) ListJournals(ctx context.Context, req *ListJournalsRequest) (*ListJournalsResponse, error) {
	holder, err := parseID("holder", req.Holder)
	if err != nil {
		return nil, err
	}
	entries, err := s.queries.GetJournalHistory(ctx, holder, query.JournalFilter{
		Limit:          req.PageSize,
		BeforeSequence: req.BeforeSequence,
		AsOfSequence:   req.AsOfSequence,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get journals: %v", err)
	}
	if entries == nil {
		entries = []query.JournalHistoryEntry{}
	}
	return &ListJournalsResponse{Journals: entries}, nil
}

// Preview answers the read-only vault views against live state, between
// two commands.
func (s *vaultService) Preview(ctx context.Context, req *PreviewRequest) (*PreviewResponse, error) {
	var amount uint64
	if req.Amount != "" {
		var err error
		if amount, err = s.units.Parse(req.Amount); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	var view func(ctx context.Context, v *vault.Vault) (uint64, error)
	switch req.Operation {
	case "convert_to_shares":
		view = func(ctx context.Context, v *vault.Vault) (uint64, error) { return v.ConvertToShares(ctx, amount) }
	case "convert_to_assets":
		view = func(ctx context.Context, v *vault.Vault) (uint64, error) { return v.ConvertToAssets(ctx, amount) }
	case "preview_deposit":
		view = func(ctx context.Context, v *vault.Vault) (uint64, error) { return v.PreviewDeposit(ctx, amount) }
	case "preview_mint":
		view = func(ctx context.Context, v *vault.Vault) (uint64, error) { return v.PreviewMint(ctx, amount) }
	case "preview_withdraw":
		view = func(ctx context.Context, v *vault.Vault) (uint64, error) { return v.PreviewWithdraw(ctx, amount) }
	case "preview_redeem":
		view = func(ctx context.Context, v *vault.Vault) (uint64, error) { return v.PreviewRedeem(ctx, amount) }
	case "credit_available":
		view = func(ctx context.Context, v *vault.Vault) (uint64, error) { return v.CreditAvailable(ctx) }
	case "max_withdraw", "max_redeem":
		owner, err := parseID("owner", req.Owner)
		if err != nil {
			return nil, err
		}
		view = func(ctx context.Context, v *vault.Vault) (uint64, error) {
			if req.Operation == "max_redeem" {
				return v.MaxRedeem(ctx, owner)
			}
			return v.MaxWithdraw(ctx, owner)
		}
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown operation %q", req.Operation)
	}

	resp := &PreviewResponse{Operation: req.Operation}
	err := s.engine.Do(ctx, func(p *core.Processor) error {
		result, err := view(ctx, p.Vault())
		if err != nil {
			return err
		}
		resp.Result = result
		resp.AsOfSequence = p.Sequence() - 1
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	resp.ResultDisplay = s.units.Format(resp.Result)
	return resp, nil
}

func (s *vaultService) TakeSnapshot(ctx context.Context, _ *TakeSnapshotRequest) (*TakeSnapshotResponse, error) {
	resp := &TakeSnapshotResponse{}
	err := s.engine.Do(ctx, func(p *core.Processor) error {
		resp.Sequence = p.EmitSnapshot().Sequence
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info().Int64("seq", resp.Sequence).Msg("snapshot requested")
	return resp, nil
}

func (s *vaultService) RebuildProjections(ctx context.Context, _ *RebuildProjectionsRequest) (*RebuildProjectionsResponse, error) {
	var stats vault.Stats
	err := s.engine.Do(ctx, func(p *core.Processor) error {
		var err error
		stats, err = p.Vault().Stats(ctx)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}

	seq, err := projection.RebuildProjections(ctx, s.db, s.vaultID, &stats, s.logger)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "rebuild failed: %v", err)
	}
	return &RebuildProjectionsResponse{LastSequence: seq}, nil
}

func (s *vaultService) GetEventLogInfo(ctx context.Context, _ *GetEventLogInfoRequest) (*GetEventLogInfoResponse, error) {
	resp := &GetEventLogInfoResponse{}
	err := s.engine.Do(ctx, func(p *core.Processor) error {
		hash := p.StateHash()
		resp.NextSequence = p.Sequence()
		resp.StateHash = hex.EncodeToString(hash[:])
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}

	if resp.LastPersistedSequence, err = s.log.GetLatestSequence(ctx); err != nil {
		return nil, status.Errorf(codes.Internal, "get latest sequence: %v", err)
	}
	return resp, nil
}

func (s *vaultService) VerifyIntegrity(ctx context.Context, _ *VerifyIntegrityRequest) (*query.IntegrityReport, error) {
	report, err := s.queries.VerifyIntegrity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "verify integrity: %v", err)
	}
	return report, nil
}

// ============================================================================
// Helpers
// ============================================================================

func parseID(field, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return id, nil
}

// toStatus maps domain errors to gRPC codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, core.ErrStopped):
		code = codes.Unavailable
	case errors.Is(err, core.ErrSequenceGap), errors.Is(err, core.ErrOutOfOrder):
		code = codes.FailedPrecondition
	case errors.Is(err, vault.ErrInsufficientShares),
		errors.Is(err, vault.ErrInsufficientLiquidity),
		errors.Is(err, vault.ErrInsolventPool),
		errors.Is(err, vault.ErrExcessiveLoss),
		errors.Is(err, ledger.ErrInsufficientBalance):
		code = codes.FailedPrecondition
	case errors.Is(err, vault.ErrZeroShares),
		errors.Is(err, vault.ErrZeroAssets),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrOverflow),
		errors.Is(err, ledger.ErrAmountOutOfRange),
		errors.Is(err, core.ErrInvalidCommand),
		errors.Is(err, core.ErrUnknownEvent):
		code = codes.InvalidArgument
	case errors.Is(err, core.ErrUnsupported):
		code = codes.Unimplemented
	case errors.Is(err, vault.ErrReentrant),
		errors.Is(err, vault.ErrStrategyMisreport),
		errors.Is(err, core.ErrReplayDivergence):
		code = codes.Aborted
	case errors.Is(err, vault.ErrUnauthorizedBorrow), errors.Is(err, core.ErrUnknownStrategy):
		code = codes.PermissionDenied
	case errors.Is(err, strategy.ErrRemoteStrategyFailed):
		code = codes.Unavailable
	}
	return status.Error(code, fmt.Sprint(err))
}
