package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// fakeStore embeds Store so only Close needs a body.
type fakeStore struct {
	Store
	closed bool
}

func (f *fakeStore) Close() { f.closed = true }

func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	var got Config
	Register("fake", func(ctx context.Context, cfg Config) (Store, error) {
		got = cfg
		return &fakeStore{}, nil
	})

	s, err := New(context.Background(), Config{Kind: "fake", DSN: "x.db", Table: "effectifs"})
	if err != nil || s == nil {
		t.Fatalf("New = %v, %v", s, err)
	}
	if got.DSN != "x.db" || got.Table != "effectifs" {
		t.Fatalf("factory cfg = %+v", got)
	}
	found := false
	for _, k := range ListKinds() {
		if k == "fake" {
			found = true
		}
	}
	if !found {
		t.Fatalf("fake not in ListKinds: %v", ListKinds())
	}
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if got, want := err.Error(), "unsupported storage.kind=does-not-exist"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

func TestRegister_Override(t *testing.T) {
	t.Parallel()

	calls := 0
	Register("override", func(context.Context, Config) (Store, error) { calls++; return &fakeStore{}, nil })
	Register("override", func(context.Context, Config) (Store, error) { calls += 10; return &fakeStore{}, nil })

	if _, err := New(context.Background(), Config{Kind: "override"}); err != nil {
		t.Fatalf("New error: %v", err)
	}
	if calls != 10 {
		t.Fatalf("factory call count = %d, want 10", calls)
	}
}

func TestListKinds_Snapshot(t *testing.T) {
	t.Parallel()

	Register("snap", func(context.Context, Config) (Store, error) { return &fakeStore{}, nil })
	a := ListKinds()
	a[0] = "mutated"
	if b := ListKinds(); reflect.DeepEqual(a, b) {
		t.Fatalf("ListKinds returned shared slice")
	}
}

func TestRegister_FactoryErrorBubbles(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	Register("errkind", func(context.Context, Config) (Store, error) { return nil, want })
	if _, err := New(context.Background(), Config{Kind: "errkind"}); !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}
