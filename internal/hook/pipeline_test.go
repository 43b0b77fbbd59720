package hook_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
	"github.com/Strob0t/SwarmGate/internal/hook"
)

// recorder appends phase markers to a shared log so tests can assert order.
type recorder struct {
	hook.Base
	name string
	log  *[]string
	mu   *sync.Mutex

	preErr error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) PreInvoke(_ context.Context, _ *hook.Context) error {
	r.record("pre:" + r.name)
	return r.preErr
}

func (r *recorder) PostInvoke(_ context.Context, _ *hook.Context) error {
	r.record("post:" + r.name)
	return nil
}

func (r *recorder) OnError(_ context.Context, _ *hook.Context, _ error) {
	r.record("err:" + r.name)
}

func (r *recorder) record(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, entry)
}

func newRecorders(names ...string) ([]*recorder, *[]string) {
	log := &[]string{}
	mu := &sync.Mutex{}
	hooks := make([]*recorder, 0, len(names))
	for _, n := range names {
		hooks = append(hooks, &recorder{name: n, log: log, mu: mu})
	}
	return hooks, log
}

func testContext() *hook.Context {
	return hook.NewContext(&delegation.Request{
		RequestID:          "req-1",
		SessionID:          "sess-1",
		ActorID:            "actor-1",
		TaskType:           "classify",
		RequiredConfidence: 0.5,
	})
}

func TestPipeline_PreOrderPostReverse(t *testing.T) {
	recs, log := newRecorders("a", "b", "c")
	p := hook.NewPipeline(recs[0], recs[1], recs[2])
	hc := testContext()

	if err := p.RunPre(context.Background(), hc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.RunPost(context.Background(), hc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"pre:a", "pre:b", "pre:c", "post:c", "post:b", "post:a"}
	if strings.Join(*log, ",") != strings.Join(want, ",") {
		t.Errorf("order mismatch:\n got %v\nwant %v", *log, want)
	}
}

func TestPipeline_AbortShortCircuits(t *testing.T) {
	recs, log := newRecorders("a", "b", "c")
	recs[1].preErr = hook.Abort("policy violation")
	p := hook.NewPipeline(recs[0], recs[1], recs[2])

	err := p.RunPre(context.Background(), testContext())
	if err == nil {
		t.Fatal("expected abort error")
	}

	var abort *hook.AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %T", err)
	}
	if abort.Hook != "b" {
		t.Errorf("expected aborting hook b, got %q", abort.Hook)
	}
	if abort.Reason != "policy violation" {
		t.Errorf("unexpected reason %q", abort.Reason)
	}

	for _, entry := range *log {
		if entry == "pre:c" {
			t.Error("hook c must not run after abort")
		}
	}
}

func TestPipeline_OnErrorReverseOrder(t *testing.T) {
	recs, log := newRecorders("a", "b")
	p := hook.NewPipeline(recs[0], recs[1])

	p.RunOnError(context.Background(), testContext(), errors.New("boom"))

	want := []string{"err:b", "err:a"}
	if strings.Join(*log, ",") != strings.Join(want, ",") {
		t.Errorf("order mismatch: got %v want %v", *log, want)
	}
}

func TestGuardrailHook(t *testing.T) {
	g := hook.GuardrailHook{
		MaxPayloadBytes: 16,
		DeniedTaskTypes: []delegation.TaskType{"shell"},
		HighRiskTaskTypes: []delegation.TaskType{
			"deploy",
		},
	}

	t.Run("denied task type aborts", func(t *testing.T) {
		hc := testContext()
		hc.Request = &delegation.Request{RequestID: "r", SessionID: "s", ActorID: "a", TaskType: "shell", RequiredConfidence: 0.5}
		err := g.PreInvoke(context.Background(), hc)
		var abort *hook.AbortError
		if !errors.As(err, &abort) {
			t.Fatalf("expected AbortError, got %v", err)
		}
	})

	t.Run("oversized payload aborts", func(t *testing.T) {
		hc := testContext()
		hc.Request.Payload = json.RawMessage(`{"data":"aaaaaaaaaaaaaaaaaaaaaaaa"}`)
		if err := g.PreInvoke(context.Background(), hc); err == nil {
			t.Fatal("expected abort for oversized payload")
		}
	})

	t.Run("high risk task annotated", func(t *testing.T) {
		hc := testContext()
		hc.Request = &delegation.Request{RequestID: "r", SessionID: "s", ActorID: "a", TaskType: "deploy", RequiredConfidence: 0.5}
		if err := g.PreInvoke(context.Background(), hc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		v, ok := hc.Annotation(hook.RiskAnnotation)
		if !ok || v.(delegation.RiskLevel) != delegation.RiskHigh {
			t.Errorf("expected RiskHigh annotation, got %v", v)
		}
	})
}
