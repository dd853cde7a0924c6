package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingPlugin struct {
	name     string
	created  atomic.Int32
	exceeded atomic.Int32
	err      error
}

func (p *countingPlugin) Name() string { return p.name }

func (p *countingPlugin) OnSubscriptionCreated(context.Context, interface{}) error {
	p.created.Add(1)
	return p.err
}

func (p *countingPlugin) OnQuotaExceeded(_ context.Context, _, _ string, _, _ int64) error {
	p.exceeded.Add(1)
	return p.err
}

type slowPlugin struct{ release chan struct{} }

func (p *slowPlugin) Name() string { return "slow" }

func (p *slowPlugin) OnUsageRecorded(context.Context, string, string) error {
	<-p.release
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(&countingPlugin{name: "audit"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&countingPlugin{name: "audit"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d", r.Count())
	}
	if r.Get("audit") == nil || r.Get("missing") != nil {
		t.Fatal("Get returned the wrong plugin")
	}
}

func TestEmitDispatchesOnlyToImplementers(t *testing.T) {
	r := quietRegistry()
	p := &countingPlugin{name: "counter"}
	_ = r.Register(p)

	ctx := context.Background()
	r.EmitSubscriptionCreated(ctx, nil)
	r.EmitQuotaExceeded(ctx, "u1", "aiTutorQueries", 20, 20)
	r.EmitPaymentInitiated(ctx, nil) // not implemented, must not panic

	if p.created.Load() != 1 || p.exceeded.Load() != 1 {
		t.Fatalf("created=%d exceeded=%d", p.created.Load(), p.exceeded.Load())
	}
}

func TestHookErrorsDoNotStopDispatch(t *testing.T) {
	r := quietRegistry()
	failing := &countingPlugin{name: "failing", err: errors.New("boom")}
	ok := &countingPlugin{name: "ok"}
	_ = r.Register(failing)
	_ = r.Register(ok)

	r.EmitSubscriptionCreated(context.Background(), nil)

	if failing.created.Load() != 1 || ok.created.Load() != 1 {
		t.Fatal("every implementer must be called")
	}
}

func TestSlowHookTimesOut(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	p := &slowPlugin{release: make(chan struct{})}
	defer close(p.release)
	_ = r.Register(p)

	start := time.Now()
	r.EmitUsageRecorded(context.Background(), "u1", "achievements")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("emit blocked for %v", elapsed)
	}
}

func TestImplementedInterfaces(t *testing.T) {
	got := implementedInterfaces(&countingPlugin{name: "x"})
	want := []string{"OnSubscriptionCreated", "OnQuotaExceeded"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
