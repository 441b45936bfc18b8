package app

import (
	"context"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/voicerelay/internal/core/mock_core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/sourcegraph/conc"
)

func newMockConn(ctrl *gomock.Controller, id domain.ConnID) *mock_core.MockConn {
	c := mock_core.NewMockConn(ctrl)
	c.EXPECT().ID().Return(id).AnyTimes()
	return c
}

func TestRegistryLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewRegistry(nil)
	conn := newMockConn(ctrl, "a")

	if !r.Register(conn, "client-1", nil) {
		t.Fatalf("first register must succeed")
	}
	if r.Register(conn, "client-1", nil) {
		t.Fatalf("duplicate register must fail")
	}
	if got := r.State("a"); got != domain.StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
	if r.Client("a") != "client-1" {
		t.Fatalf("client = %q", r.Client("a"))
	}
	if !r.SetState("a", domain.StateActive) || r.State("a") != domain.StateActive {
		t.Fatalf("SetState active failed")
	}

	got, ok := r.Remove("a")
	if !ok || got != conn {
		t.Fatalf("Remove = %v, %v", got, ok)
	}
	if r.State("a") != domain.StateDisconnected {
		t.Fatalf("removed conn must read as disconnected")
	}
	if r.SetState("a", domain.StateActive) {
		t.Fatalf("SetState on removed conn must fail")
	}
	if _, ok := r.Get("a"); ok || r.Len() != 0 {
		t.Fatalf("conn still registered")
	}
}

func TestRegistryRemoveOnlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewRegistry(nil)
	r.Register(newMockConn(ctrl, "a"), "", nil)

	var (
		wg   conc.WaitGroup
		wins = make(chan struct{}, 16)
	)
	for i := 0; i < 16; i++ {
		wg.Go(func() {
			if _, ok := r.Remove("a"); ok {
				wins <- struct{}{}
			}
		})
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("Remove succeeded %d times, want 1", n)
	}
}

func TestRegistryCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	r.Register(newMockConn(ctrl, "a"), "", cancel)

	if !r.Cancel("a") {
		t.Fatalf("Cancel on live conn must succeed")
	}
	if ctx.Err() == nil {
		t.Fatalf("context was not canceled")
	}
	if r.Cancel("missing") {
		t.Fatalf("Cancel on unknown conn must fail")
	}
}
