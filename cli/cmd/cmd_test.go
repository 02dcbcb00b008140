package cmd

import "testing"

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestTUIReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := TUIReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("TUIReadOnlyFlags should include --tui flag")
	}
}
