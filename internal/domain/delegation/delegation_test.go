package delegation_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Strob0t/SwarmGate/internal/domain/delegation"
)

func validRequest() *delegation.Request {
	return &delegation.Request{
		RequestID:          "req-1",
		SessionID:          "sess-1",
		ActorID:            "actor-1",
		TaskType:           "classify",
		Payload:            json.RawMessage(`{"text":"hello"}`),
		RequiredConfidence: 0.8,
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*delegation.Request)
		wantErr string
	}{
		{"valid", func(*delegation.Request) {}, ""},
		{"missing request id", func(r *delegation.Request) { r.RequestID = "" }, "request_id"},
		{"missing session id", func(r *delegation.Request) { r.SessionID = "" }, "session_id"},
		{"missing actor id", func(r *delegation.Request) { r.ActorID = "" }, "actor_id"},
		{"missing task type", func(r *delegation.Request) { r.TaskType = "" }, "task_type"},
		{"confidence below range", func(r *delegation.Request) { r.RequiredConfidence = -0.1 }, "out of range"},
		{"confidence above range", func(r *delegation.Request) { r.RequiredConfidence = 1.1 }, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestResponseValidate_ResultErrorExclusive(t *testing.T) {
	resp := &delegation.Response{
		RequestID:  "req-1",
		Result:     json.RawMessage(`"ok"`),
		Error:      "boom",
		Confidence: 0.9,
	}
	if err := resp.Validate(); err == nil {
		t.Fatal("expected mutual exclusion error")
	}

	resp.Error = ""
	if err := resp.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp.Result = nil
	if err := resp.Validate(); err == nil {
		t.Fatal("expected error when both result and error are empty")
	}
}

func TestWireRoundTrip(t *testing.T) {
	req := validRequest()
	data, err := delegation.EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	decoded, err := delegation.DecodeRequest(data)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if decoded.RequestID != req.RequestID || decoded.TaskType != req.TaskType {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing version", `{"response":{"request_id":"r","result":"ok","confidence":0.5,"risk_level":"low"}}`},
		{"future version", `{"v":99,"response":{"request_id":"r","result":"ok","confidence":0.5,"risk_level":"low"}}`},
		{"confidence out of range", `{"v":1,"response":{"request_id":"r","result":"ok","confidence":1.5,"risk_level":"low"}}`},
		{"both result and error", `{"v":1,"response":{"request_id":"r","result":"ok","error":"x","confidence":0.5,"risk_level":"low"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := delegation.DecodeResponse([]byte(tt.data)); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestRiskLevelJSON(t *testing.T) {
	data, err := json.Marshal(delegation.RiskHigh)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"high"` {
		t.Errorf("expected \"high\", got %s", data)
	}

	var level delegation.RiskLevel
	if err := json.Unmarshal([]byte(`"critical"`), &level); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if level != delegation.RiskCritical {
		t.Errorf("expected critical, got %s", level)
	}

	if err := json.Unmarshal([]byte(`"mild"`), &level); err == nil {
		t.Error("expected error for unknown risk level")
	}
}

func TestRiskLevelOrdering(t *testing.T) {
	if !(delegation.RiskLow < delegation.RiskMedium &&
		delegation.RiskMedium < delegation.RiskHigh &&
		delegation.RiskHigh < delegation.RiskCritical) {
		t.Error("risk levels must be ordered low < medium < high < critical")
	}
}
