package actions

import (
	"context"
	"errors"
	"testing"
)

type scriptedModel struct {
	outputs []string
	errs    []error
	calls   int
}

func (m *scriptedModel) GenerateDecision(ctx context.Context, prompt string) (string, error) {
	i := m.calls
	m.calls++
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	var out string
	if i < len(m.outputs) {
		out = m.outputs[i]
	}
	return out, err
}

func TestParseDecision_PlainJSON(t *testing.T) {
	d, err := ParseDecision(`{"thought":"greet back","actions":["reply"],"message":"hi!"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Thought != "greet back" || d.Message != "hi!" {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if len(d.Actions) != 1 || d.Actions[0] != "REPLY" {
		t.Fatalf("expected normalized action REPLY, got %v", d.Actions)
	}
}

func TestParseDecision_FencedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"thought\":\"t\",\"actions\":[\"IGNORE\"],\"message\":\"\"}\n```"
	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Actions[0] != "IGNORE" {
		t.Fatalf("unexpected actions: %v", d.Actions)
	}
}

func TestParseDecision_RejectsMissingActions(t *testing.T) {
	if _, err := ParseDecision(`{"thought":"hmm","actions":[],"message":"x"}`); !errors.Is(err, ErrDecisionParse) {
		t.Fatalf("expected ErrDecisionParse, got %v", err)
	}
	if _, err := ParseDecision("total garbage"); !errors.Is(err, ErrDecisionParse) {
		t.Fatalf("expected ErrDecisionParse, got %v", err)
	}
	if _, err := ParseDecision(""); !errors.Is(err, ErrDecisionParse) {
		t.Fatalf("expected ErrDecisionParse, got %v", err)
	}
}

func TestRequestDecision_RetriesThenSucceeds(t *testing.T) {
	model := &scriptedModel{outputs: []string{
		"not json",
		`{"thought":"ok","actions":["REPLY"],"message":"hello"}`,
	}}

	d, err := RequestDecision(context.Background(), model, "prompt")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if model.calls != 2 {
		t.Fatalf("expected 2 model calls, got %d", model.calls)
	}
	if d.Actions[0] != "REPLY" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestRequestDecision_ExhaustionDegradesToNone(t *testing.T) {
	model := &scriptedModel{outputs: []string{"bad", "bad", "bad", `{"actions":["REPLY"]}`}}

	d, err := RequestDecision(context.Background(), model, "prompt")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if model.calls != MaxDecisionAttempts {
		t.Fatalf("expected exactly %d model calls, got %d", MaxDecisionAttempts, model.calls)
	}
	if len(d.Actions) != 1 || d.Actions[0] != string(ActionNone) {
		t.Fatalf("expected degraded NONE decision, got %+v", d)
	}
}

func TestRequestDecision_ModelErrorsCountAsAttempts(t *testing.T) {
	boom := errors.New("api down")
	model := &scriptedModel{
		outputs: []string{"", `{"actions":["REPLY"],"message":"hi"}`},
		errs:    []error{boom, nil},
	}

	d, err := RequestDecision(context.Background(), model, "prompt")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if model.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", model.calls)
	}
	if d.Actions[0] != "REPLY" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestRequestDecision_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{}
	if _, err := RequestDecision(ctx, model, "prompt"); err == nil {
		t.Fatalf("expected context error")
	}
	if model.calls != 0 {
		t.Fatalf("cancelled context must not invoke the model")
	}
}
