package registry

import (
	"context"
	"testing"
)

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := New[int, string]()
	MustRegister(r, Key{Kind: "double", Name: "x"}, BuilderFunc[int, string](func(_ context.Context, spec string) (int, error) {
		return len(spec) * 2, nil
	}))

	got, err := r.Build(context.Background(), Key{Kind: "double", Name: "x"}, "hello")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
}

func TestRegistry_CaseFoldLower(t *testing.T) {
	r := New[int, string](WithCaseFoldLower())
	MustRegister(r, Key{Kind: "File", Name: "Main"}, BuilderFunc[int, string](func(_ context.Context, _ string) (int, error) {
		return 1, nil
	}))

	if !r.Has(Key{Kind: "file", Name: "main"}) {
		t.Fatalf("expected case-folded lookup to find registered builder")
	}
}

func TestRegistry_DuplicateRegistrationErrors(t *testing.T) {
	r := New[int, string]()
	if err := r.Register(Key{Kind: "k", Name: "n"}, BuilderFunc[int, string](func(_ context.Context, _ string) (int, error) { return 0, nil })); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(Key{Kind: "k", Name: "n"}, BuilderFunc[int, string](func(_ context.Context, _ string) (int, error) { return 0, nil })); err == nil {
		t.Fatalf("expected duplicate registration to error")
	}
}

func TestRegistry_BuildUnknownKeyErrors(t *testing.T) {
	r := New[int, string]()
	if _, err := r.Build(context.Background(), Key{Kind: "missing"}, ""); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestRegistry_SealBlocksFurtherRegistration(t *testing.T) {
	r := New[int, string]()
	r.Seal()
	if err := r.Register(Key{Kind: "k"}, BuilderFunc[int, string](func(_ context.Context, _ string) (int, error) { return 0, nil })); err == nil {
		t.Fatalf("expected register after seal to error")
	}
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate MustRegister")
		}
	}()
	r := New[int, string]()
	b := BuilderFunc[int, string](func(_ context.Context, _ string) (int, error) { return 0, nil })
	MustRegister(r, Key{Kind: "k"}, b)
	MustRegister(r, Key{Kind: "k"}, b)
}
