package selector

import (
	"reflect"
	"testing"

	"github.com/haltline/haltd/types"
)

func TestExpandNumericRange(t *testing.T) {
	got, err := Expand(types.Selector{Mode: types.SelectorModeRange, Value: "104-106"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"104", "105", "106"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpandSingleTarget(t *testing.T) {
	got, err := Expand(types.Selector{Mode: types.SelectorModeRange, Value: "5-5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"5"}) {
		t.Errorf("got %v, want [5]", got)
	}
}

func TestExpandCompoundRange(t *testing.T) {
	// Scenario C from spec.md §8.
	got, err := Expand(types.Selector{Mode: types.SelectorModeRange, Value: "1/A1-1/B2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"1/A1", "1/A2", "1/B1", "1/B2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpandList(t *testing.T) {
	got, err := Expand(types.Selector{Mode: types.SelectorModeList, Value: "pbs01,pbs02"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"pbs01", "pbs02"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpandListWithEmbeddedRange(t *testing.T) {
	got, err := Expand(types.Selector{Mode: types.SelectorModeList, Value: "pbs01,104-106"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"pbs01", "104", "105", "106"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestQueryModeRejected(t *testing.T) {
	_, err := Expand(types.Selector{Mode: types.SelectorModeQuery, Value: "anything"})
	if err == nil {
		t.Fatal("expected error for reserved query mode")
	}
}

func TestMalformedRangeRejected(t *testing.T) {
	_, err := Parse(types.Selector{Mode: types.SelectorModeRange, Value: "104-"})
	if err == nil {
		t.Fatal("expected error for malformed range")
	}
}

func TestEmptyListItemRejected(t *testing.T) {
	_, err := Parse(types.Selector{Mode: types.SelectorModeList, Value: "a,,b"})
	if err == nil {
		t.Fatal("expected error for empty list item")
	}
}

func TestInvalidNumericRangeEndBeforeStart(t *testing.T) {
	_, err := Expand(types.Selector{Mode: types.SelectorModeRange, Value: "106-104"})
	if err == nil {
		t.Fatal("expected error for descending range")
	}
}
