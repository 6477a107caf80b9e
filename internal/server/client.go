package server

import (
	"context"

	"github.com/LeoVS09/simple-yield-farm/internal/query"

	"google.golang.org/grpc"
)

// VaultServiceClient is the client API for yieldvault.v1.VaultService.
type VaultServiceClient interface {
	SubmitCommand(ctx context.Context, in *SubmitCommandRequest, opts ...grpc.CallOption) (*SubmitCommandResponse, error)
	GetPosition(ctx context.Context, in *GetPositionRequest, opts ...grpc.CallOption) (*query.PositionResponse, error)
	GetVaultStats(ctx context.Context, in *GetVaultStatsRequest, opts ...grpc.CallOption) (*query.VaultStatsResponse, error)
	ListJournals(ctx context.Context, in *ListJournalsRequest, opts ...grpc.CallOption) (*ListJournalsResponse, error)
	Preview(ctx context.Context, in *PreviewRequest, opts ...grpc.CallOption) (*PreviewResponse, error)
	TakeSnapshot(ctx context.Context, in *TakeSnapshotRequest, opts ...grpc.CallOption) (*TakeSnapshotResponse, error)
	RebuildProjections(ctx context.Context, in *RebuildProjectionsRequest, opts ...grpc.CallOption) (*RebuildProjectionsResponse, error)
	GetEventLogInfo(ctx context.Context, in *GetEventLogInfoRequest, opts ...grpc.CallOption) (*GetEventLogInfoResponse, error)
	VerifyIntegrity(ctx context.Context, in *VerifyIntegrityRequest, opts ...grpc.CallOption) (*query.IntegrityReport, error)
}

type vaultServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewVaultServiceClient(cc grpc.ClientConnInterface) VaultServiceClient {
	return &vaultServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *vaultServiceClient) SubmitCommand(ctx context.Context, in *SubmitCommandRequest, opts ...grpc.CallOption) (*SubmitCommandResponse, error) {
	return invoke[SubmitCommandResponse](ctx, c.cc, "SubmitCommand", in, opts)
}

func (c *vaultServiceClient) GetPosition(ctx context.Context, in *GetPositionRequest, opts ...grpc.CallOption) (*query.PositionResponse, error) {
	return invoke[query.PositionResponse](ctx, c.cc, "GetPosition", in, opts)
}

func (c *vaultServiceClient) GetVaultStats(ctx context.Context, in *GetVaultStatsRequest, opts ...grpc.CallOption) (*query.VaultStatsResponse, error) {
	return invoke[query.VaultStatsResponse](ctx, c.cc, "GetVaultStats", in, opts)
}

func (c *vaultServiceClient) ListJournals(ctx context.Context, in *ListJournalsRequest, opts ...grpc.CallOption) (*ListJournalsResponse, error) {
	return invoke[ListJournalsResponse](ctx, c.cc, "ListJournals", in, opts)
}

func (c *vaultServiceClient) Preview(ctx context.Context, in *PreviewRequest, opts ...grpc.CallOption) (*PreviewResponse, error) {
	return invoke[PreviewResponse](ctx, c.cc, "Preview", in, opts)
}

func (c *vaultServiceClient) TakeSnapshot(ctx context.Context, in *TakeSnapshotRequest, opts ...grpc.CallOption) (*TakeSnapshotResponse, error) {
	return invoke[TakeSnapshotResponse](ctx, c.cc, "TakeSnapshot", in, opts)
}

func (c *vaultServiceClient) RebuildProjections(ctx context.Context, in *RebuildProjectionsRequest, opts ...grpc.CallOption) (*RebuildProjectionsResponse, error) {
	return invoke[RebuildProjectionsResponse](ctx, c.cc, "RebuildProjections", in, opts)
}

func (c *vaultServiceClient) GetEventLogInfo(ctx context.Context, in *GetEventLogInfoRequest, opts ...grpc.CallOption) (*GetEventLogInfoResponse, error) {
	return invoke[GetEventLogInfoResponse](ctx, c.cc, "GetEventLogInfo", in, opts)
}

func (c *vaultServiceClient) VerifyIntegrity(ctx context.Context, in *VerifyIntegrityRequest, opts ...grpc.CallOption) (*query.IntegrityReport, error) {
	return invoke[query.IntegrityReport](ctx, c.cc, "VerifyIntegrity", in, opts)
}
