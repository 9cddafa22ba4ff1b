package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"bff.life/internal/protocol"
)

func TestFrameSchema_ValidatesSample(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "frame.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	frame := protocol.FrameMsg{
		RunID:           "9e2c1e08-13b4-4f4f-9f64-0d6ad1f0a001",
		Epoch:           100,
		Width:           2,
		Height:          1,
		Entropy:         5.91,
		AvgIters:        812.4,
		FinishedRatio:   0.71,
		TerminatedRatio: 0.29,
		Grid:            [][][3]int{{{0, 192, 0}, {200, 0, 200}}},
	}
	raw, err := frame.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}

	// Out-of-range ratio must be rejected.
	var bad any
	_ = json.Unmarshal([]byte(`{"epoch":1,"entropy":0,"finished_ratio":2.0,"grid":[]}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatal("expected out-of-range finished_ratio to fail validation")
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	frame := protocol.FrameMsg{Epoch: 3, Entropy: 1.5, Grid: [][][3]int{{{1, 2, 3}}}}
	raw, err := frame.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := protocol.DecodeFrame(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Epoch != 3 || back.Grid[0][0] != [3]int{1, 2, 3} {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}
