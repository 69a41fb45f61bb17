package client

import (
	"context"
	"net"
	"testing"

	"github.com/alfredjeanlab/stagegate/internal/model"
	"github.com/alfredjeanlab/stagegate/internal/server"
	"github.com/alfredjeanlab/stagegate/internal/store/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newGRPCTestClient(t *testing.T, serverToken, clientToken string) (*GRPCClient, *memory.Store) {
	t.Helper()
	srv, st := newGateServer(t)
	lis := bufconn.Listen(1 << 20)
	gs := server.NewGRPCServer(srv, serverToken)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", clientToken,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, st
}

func TestGRPCClient_GateClient(t *testing.T) {
	c, st := newGRPCTestClient(t, "secret", "secret")
	exerciseGateClient(t, c, st)
}

func TestGRPCClient_Errors(t *testing.T) {
	c, _ := newGRPCTestClient(t, "secret", "wrong")
	ctx := context.Background()

	if _, err := c.Health(ctx); err != nil {
		t.Fatalf("Health should not need a token: %v", err)
	}
	if _, err := c.CanAdvance(ctx, "pj-1"); status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}

	open, _ := newGRPCTestClient(t, "", "")
	if _, err := open.GateStatus(ctx, "pj-missing", false); status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
	if _, err := open.Evaluate(ctx, &EvaluateRequest{ProjectID: "pj-1"}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestGRPCClient_Actor(t *testing.T) {
	c, st := newGRPCTestClient(t, "", "")
	c.WithActor("carol")
	ctx := context.Background()

	if _, err := c.Evaluate(ctx, &EvaluateRequest{ProjectID: "pj-1", GateKey: "design_lock"}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if _, err := c.Evaluate(ctx, &EvaluateRequest{ProjectID: "pj-1", GateKey: "design_lock", EvaluatedBy: "dave"}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	evals, err := st.ListEvaluations(ctx, model.EvaluationFilter{ProjectID: "pj-1", OldestFirst: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(evals) != 2 || evals[0].EvaluatedBy != "carol" || evals[1].EvaluatedBy != "dave" {
		for _, e := range evals {
			t.Logf("evaluation %s by %q", e.ID, e.EvaluatedBy)
		}
		t.Fatalf("want evaluations by carol then dave")
	}
}
