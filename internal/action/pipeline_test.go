package action

import (
	"net/http"
	"testing"
)

// recordingAction notes its invocation and returns a fixed result.
type recordingAction struct {
	name   string
	calls  *[]string
	result Result
	err    error
	status int
}

func (a *recordingAction) Run(ctx *Context) (Result, error) {
	*a.calls = append(*a.calls, a.name)
	if a.status != 0 {
		ctx.W.WriteHeader(a.status)
	}
	return a.result, a.err
}

func testRegistry(actions map[string]Action) *Registry {
	return &Registry{actions: actions}
}

func TestPipelineRunsActionsInOrder(t *testing.T) {
	var calls []string
	registry := testRegistry(map[string]Action{
		"first":  &recordingAction{name: "first", calls: &calls, result: Continue},
		"second": &recordingAction{name: "second", calls: &calls, result: Continue},
	})
	store := newTestStore(t, "")
	route := newRoute("x", nil, "first", "second")
	ctx, _, _ := newContext(t, store, route, nil)

	terminated, err := NewPipeline(registry).Execute(ctx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if terminated {
		t.Fatal("pass-through pipeline reported terminated")
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestPipelineShortCircuits(t *testing.T) {
	var calls []string
	registry := testRegistry(map[string]Action{
		"stop":  &recordingAction{name: "stop", calls: &calls, result: Terminated, status: http.StatusTeapot},
		"after": &recordingAction{name: "after", calls: &calls, result: Continue},
	})
	store := newTestStore(t, "")
	route := newRoute("x", nil, "stop", "after")
	ctx, recorder, _ := newContext(t, store, route, nil)

	terminated, err := NewPipeline(registry).Execute(ctx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !terminated {
		t.Fatal("expected termination")
	}
	if len(calls) != 1 || calls[0] != "stop" {
		t.Fatalf("later action ran: %v", calls)
	}
	if recorder.Code != http.StatusTeapot {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestPipelineUnknownActionIsConfigError(t *testing.T) {
	store := newTestStore(t, "")
	route := newRoute("x", nil, "nonsense")
	ctx, _, _ := newContext(t, store, route, nil)

	if _, err := NewPipeline(NewRegistry()).Execute(ctx); err == nil {
		t.Fatal("expected configuration error for unknown action")
	}
}

func TestRegistryCoversActionVocabulary(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"authorize", "catchfile", "servefile", "sleep", "video"} {
		if _, ok := registry.Lookup(name); !ok {
			t.Errorf("action %q missing from registry", name)
		}
	}
	if _, ok := registry.Lookup("eval"); ok {
		t.Fatal("registry must be a closed set")
	}
}
