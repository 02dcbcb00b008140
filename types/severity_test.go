package types

import (
	"encoding/json"
	"testing"
)

func TestMaxSeverity(t *testing.T) {
	cases := []struct {
		name string
		in   []Severity
		want Severity
	}{
		{"empty", nil, SeverityInfo},
		{"single", []Severity{SeverityWarn}, SeverityWarn},
		{"mixed", []Severity{SeverityInfo, SeverityError, SeverityWarn}, SeverityError},
		{"blocker wins", []Severity{SeverityError, SeverityBlocker}, SeverityBlocker},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaxSeverity(tc.in...); got != tc.want {
				t.Errorf("MaxSeverity(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSeverityJSONRoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityInfo, SeverityWarn, SeverityError, SeverityBlocker} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var got Severity
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %v: %v", s, err)
		}
		if got != s {
			t.Errorf("round trip %v -> %q -> %v", s, data, got)
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !(SeverityInfo < SeverityWarn && SeverityWarn < SeverityError && SeverityError < SeverityBlocker) {
		t.Fatal("severity lattice ordering violated")
	}
}
