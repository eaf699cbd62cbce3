package boundctx

import (
	"context"
	"testing"

	"dirpx.dev/pulselog/apis/field"
)

func TestExtract_EmptyContext(t *testing.T) {
	if got := Extract(context.Background()); got != nil {
		t.Fatalf("Extract on bare context = %v, want nil", got)
	}
}

func TestBind_AccumulatesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	ctx = Bind(ctx, field.Field{Key: "a", Value: 1})
	ctx = Bind(ctx, field.Field{Key: "b", Value: 2})

	got := Extract(ctx)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].Key != "a" || got[1].Key != "b" {
		t.Fatalf("got = %v, want [a b] in bind order", got)
	}
}

func TestBind_DoesNotMutateParent(t *testing.T) {
	base := Bind(context.Background(), field.Field{Key: "a", Value: 1})
	derived := Bind(base, field.Field{Key: "b", Value: 2})

	if len(Extract(base)) != 1 {
		t.Fatalf("expected parent context unaffected by child Bind")
	}
	if len(Extract(derived)) != 2 {
		t.Fatalf("expected derived context to see both fields")
	}
}

func TestBind_NoFieldsReturnsSameContext(t *testing.T) {
	ctx := context.Background()
	if Bind(ctx) != ctx {
		t.Fatalf("expected Bind with no fields to return the same context value")
	}
}
