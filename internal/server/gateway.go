package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/LeoVS09/simple-yield-farm/internal/observability"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxCommandBody = 1 << 20

// NewGatewayHandler maps the REST routes onto client calls. /healthz and
// /readyz are answered locally.
func NewGatewayHandler(client VaultServiceClient, hc *observability.HealthChecker) (http.Handler, error) {
	gw := runtime.NewServeMux()
	errMarshaler := &runtime.JSONPb{}

	fail := func(w http.ResponseWriter, r *http.Request, err error) {
		runtime.HTTPError(r.Context(), gw, errMarshaler, w, r, err)
	}
	reply := func(w http.ResponseWriter, r *http.Request, resp any, err error) {
		if err != nil {
			fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}

	routes := []struct {
		method, pattern string
		handler         runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/commands/{type}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
			if err != nil {
				fail(w, r, status.Errorf(codes.InvalidArgument, "read body: %v", err))
				return
			}
			resp, err := client.SubmitCommand(r.Context(), &SubmitCommandRequest{Type: p["type"], Command: body})
			reply(w, r, resp, err)
		}},
		{http.MethodGet, "/v1/positions/{holder}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			resp, err := client.GetPosition(r.Context(), &GetPositionRequest{Holder: p["holder"]})
			reply(w, r, resp, err)
		}},
		{http.MethodGet, "/v1/vault/stats", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			resp, err := client.GetVaultStats(r.Context(), &GetVaultStatsRequest{})
			reply(w, r, resp, err)
		}},
		{http.MethodGet, "/v1/holders/{holder}/journals", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			req := &ListJournalsRequest{Holder: p["holder"]}
			q := r.URL.Query()
			var err error
			if v := q.Get("page_size"); v != "" {
				if req.PageSize, err = strconv.Atoi(v); err != nil {
					fail(w, r, status.Errorf(codes.InvalidArgument, "page_size: %v", err))
					return
				}
			}
			if req.BeforeSequence, err = optionalInt64(q.Get("before_sequence")); err != nil {
				fail(w, r, status.Errorf(codes.InvalidArgument, "before_sequence: %v", err))
				return
			}
			if req.AsOfSequence, err = optionalInt64(q.Get("as_of_sequence")); err != nil {
				fail(w, r, status.Errorf(codes.InvalidArgument, "as_of_sequence: %v", err))
				return
			}
			resp, err := client.ListJournals(r.Context(), req)
			reply(w, r, resp, err)
		}},
		{http.MethodGet, "/v1/vault/preview/{operation}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			q := r.URL.Query()
			resp, err := client.Preview(r.Context(), &PreviewRequest{
				Operation: p["operation"],
				Amount:    q.Get("amount"),
				Owner:     q.Get("owner"),
			})
			reply(w, r, resp, err)
		}},
		{http.MethodPost, "/v1/admin/snapshot", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			resp, err := client.TakeSnapshot(r.Context(), &TakeSnapshotRequest{})
			reply(w, r, resp, err)
		}},
		{http.MethodPost, "/v1/admin/rebuild-projections", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			resp, err := client.RebuildProjections(r.Context(), &RebuildProjectionsRequest{})
			reply(w, r, resp, err)
		}},
		{http.MethodGet, "/v1/admin/event-log", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			resp, err := client.GetEventLogInfo(r.Context(), &GetEventLogInfoRequest{})
			reply(w, r, resp, err)
		}},
		{http.MethodGet, "/v1/admin/integrity", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			resp, err := client.VerifyIntegrity(r.Context(), &VerifyIntegrityRequest{})
			reply(w, r, resp, err)
		}},
	}
	for _, rt := range routes {
		if err := gw.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	mux := http.NewServeMux()
	if hc != nil {
		mux.HandleFunc("/healthz", hc.LivenessHandler)
		mux.HandleFunc("/readyz", hc.ReadinessHandler)
	} else {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"status":"ok"}`)
		})
	}
	mux.Handle("/", gw)
	return mux, nil
}

func optionalInt64(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
