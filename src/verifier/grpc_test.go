package verifier

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"group-registry/src/models"
)

type verifierServer interface {
	ListNeurons(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	BalanceOf(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(call func(srv verifierServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		return call(srv.(verifierServer), ctx, req)
	}
}

var verifierServiceDesc = grpc.ServiceDesc{
	ServiceName: "verifier.v1.Verifier",
	HandlerType: (*verifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListNeurons", Handler: unaryHandler(verifierServer.ListNeurons)},
		{MethodName: "BalanceOf", Handler: unaryHandler(verifierServer.BalanceOf)},
	},
}

type stubServer struct {
	mu       sync.Mutex
	neurons  *structpb.Struct
	balance  *structpb.Struct
	lastReq  *structpb.Struct
	failWith error
}

func (s *stubServer) ListNeurons(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReq = req
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.neurons, nil
}

func (s *stubServer) BalanceOf(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReq = req
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.balance, nil
}

func (s *stubServer) setBalance(resp *structpb.Struct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = resp
}

func (s *stubServer) request() *structpb.Struct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

func startVerifier(t *testing.T, srv *stubServer) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&verifierServiceDesc, srv)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}
	return s
}

func TestListNeurons(t *testing.T) {
	srv := &stubServer{}
	srv.neurons = mustStruct(t, map[string]any{
		"next_cursor": "page-2",
		"neurons": []any{
			map[string]any{
				"id":                        "n1",
				"created_timestamp_seconds": float64(1_600_000_000),
				"cached_neuron_stake_e8s":   "18446744073709551615",
				"dissolve_delay_seconds":    "31536000",
			},
			map[string]any{
				"id":                               "n2",
				"when_dissolved_timestamp_seconds": float64(1_900_000_000),
			},
		},
	})
	client := startVerifier(t, srv)

	page, err := client.ListNeurons(context.Background(), "gov-1", "alice", 50, "page-1")
	if err != nil {
		t.Fatalf("ListNeurons() error = %v", err)
	}
	if page.NextCursor != "page-2" || len(page.Neurons) != 2 {
		t.Fatalf("page = %+v", page)
	}
	first := page.Neurons[0]
	if first.StakeE8s != 18446744073709551615 || first.CreatedTimestampSeconds != 1_600_000_000 {
		t.Fatalf("first neuron = %+v", first)
	}
	if first.DissolveState == nil || first.DissolveState.DelaySeconds == nil || *first.DissolveState.DelaySeconds != 31536000 {
		t.Fatalf("first dissolve state = %+v", first.DissolveState)
	}
	second := page.Neurons[1]
	if second.DissolveState == nil || second.DissolveState.WhenDissolvedSeconds == nil {
		t.Fatalf("second dissolve state = %+v", second.DissolveState)
	}

	fields := srv.request().GetFields()
	if fields["governance_canister"].GetStringValue() != "gov-1" ||
		fields["principal"].GetStringValue() != "alice" ||
		fields["page_size"].GetNumberValue() != 50 ||
		fields["cursor"].GetStringValue() != "page-1" {
		t.Fatalf("request = %v", srv.request())
	}
}

func TestListNeuronsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		neuron map[string]any
	}{
		{"negative stake", map[string]any{"cached_neuron_stake_e8s": float64(-1)}},
		{"fractional age", map[string]any{"created_timestamp_seconds": 1.5}},
		{"bad string", map[string]any{"dissolve_delay_seconds": "soon"}},
		{"both dissolve fields", map[string]any{"dissolve_delay_seconds": "1", "when_dissolved_timestamp_seconds": "2"}},
		{"wrong type", map[string]any{"cached_neuron_stake_e8s": true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := &stubServer{neurons: mustStruct(t, map[string]any{"neurons": []any{tc.neuron}})}
			client := startVerifier(t, srv)
			if _, err := client.ListNeurons(context.Background(), "gov", "alice", 10, ""); err == nil {
				t.Fatalf("ListNeurons() error = nil, want decode error")
			}
		})
	}
}

func TestBalanceOf(t *testing.T) {
	srv := &stubServer{balance: mustStruct(t, map[string]any{"balance": "340282366920938463463374607431768211455"})}
	client := startVerifier(t, srv)

	balance, err := client.BalanceOf(context.Background(), models.StandardICRC, "ledger", "alice")
	if err != nil {
		t.Fatalf("BalanceOf() error = %v", err)
	}
	if balance.String() != "340282366920938463463374607431768211455" {
		t.Fatalf("balance = %s", balance)
	}
	if got := srv.request().GetFields()["standard"].GetStringValue(); got != "ICRC" {
		t.Fatalf("standard = %q, want ICRC", got)
	}

	tests := []struct {
		name string
		resp map[string]any
	}{
		{"missing balance", map[string]any{}},
		{"not a number", map[string]any{"balance": "lots"}},
		{"negative", map[string]any{"balance": "-5"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv.setBalance(mustStruct(t, tc.resp))
			if _, err := client.BalanceOf(context.Background(), models.StandardDIP20, "c", "alice"); err == nil {
				t.Fatalf("BalanceOf() error = nil, want error")
			}
		})
	}
}

func TestServerErrorsPropagate(t *testing.T) {
	srv := &stubServer{failWith: status.Error(codes.Unavailable, "canister stopped")}
	client := startVerifier(t, srv)

	_, err := client.BalanceOf(context.Background(), models.StandardICRC, "ledger", "alice")
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("status.Code(err) = %v, want Unavailable", status.Code(err))
	}
}
