// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sampleFrame struct {
	Type       string            `cbor:"type"`
	ID         uint64            `cbor:"id,omitempty"`
	Controller string            `cbor:"controller,omitempty"`
	Labels     map[string]string `cbor:"labels,omitempty"`
	Body       []byte            `cbor:"body,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleFrame{
		Type:       "request",
		ID:         17,
		Controller: "ingress-controller",
		Body:       []byte{0x00, 0xff, 0x10},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleFrame
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Type != original.Type || decoded.ID != original.ID || decoded.Controller != original.Controller {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if !bytes.Equal(decoded.Body, original.Body) {
		t.Errorf("body = %x, want %x", decoded.Body, original.Body)
	}
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	// Map iteration order is random in Go; deterministic encoding
	// must sort keys so repeated encodes are byte-identical.
	frame := sampleFrame{
		Type: "result",
		Labels: map[string]string{
			"zeta": "1", "alpha": "2", "mid": "3", "beta": "4",
		},
	}

	first, err := Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(frame)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding %d differs: %x != %x", i, again, first)
		}
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	frames := []sampleFrame{
		{Type: "hello", Controller: "a"},
		{Type: "request", ID: 1},
		{Type: "request", ID: 2, Body: []byte("payload")},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, frame := range frames {
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range frames {
		var got sampleFrame
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode frame %d: %v", i, err)
		}
		if got.Type != want.Type || got.ID != want.ID || got.Controller != want.Controller {
			t.Errorf("frame %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var frame sampleFrame
	if err := Unmarshal([]byte{0xff, 0xfe}, &frame); err == nil {
		t.Fatal("expected error for invalid CBOR")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"status": 200})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"status"`) || !strings.Contains(diagnostic, "200") {
		t.Errorf("diagnostic %q missing expected content", diagnostic)
	}
}
