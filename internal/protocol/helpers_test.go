package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEpoch_Unmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  Epoch
	}{
		{`1380000000`, 1380000000},
		{`"1380000000"`, 1380000000},
		{`null`, 0},
		{`"soon"`, 0},
		{`{}`, 0},
	}
	for _, tt := range tests {
		var e Epoch
		if err := json.Unmarshal([]byte(tt.input), &e); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", tt.input, err)
		}
		if e != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.input, e, tt.want)
		}
	}
}

func TestEpoch_Time(t *testing.T) {
	if _, ok := Epoch(0).Time(); ok {
		t.Error("zero epoch should be missing")
	}
	got, ok := Epoch(60).Time()
	if !ok || !got.Equal(time.Unix(60, 0)) {
		t.Errorf("Epoch(60).Time() = %v, %v", got, ok)
	}
	if NewEpoch(time.Time{}) != 0 {
		t.Error("NewEpoch(zero) should be 0")
	}
}

func TestFlexString_Unmarshal(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"-2","b":2,"c":null}`), &v); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if v.A != "-2" || v.B != "2" || v.C != "" {
		t.Errorf("got %q %q %q", v.A, v.B, v.C)
	}
}

func TestPtrDeref(t *testing.T) {
	p := Ptr("x")
	if Deref(p) != "x" {
		t.Errorf("Deref(Ptr(x)) = %q", Deref(p))
	}
	var nilPtr *string
	if Deref(nilPtr) != "" {
		t.Error("Deref(nil) should be zero value")
	}
}
