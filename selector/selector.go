// Package selector parses and expands the target selector grammar of
// PolicySpec.targets.selector:
//
//   - list:  comma-separated items; each item is an identifier or a range
//   - range: two identifiers joined by "-"; numeric ranges expand
//     inclusively; compound identifiers of the form "<slot>/<alpha><num>"
//     expand over both axes, alpha outer / numeric inner
//   - query: reserved, always a compile blocker
//
// Grounded on the hand-written, explicit-error parsing style of the
// teacher's proxy pool/strategy parser — no parser-generator or combinator
// library is warranted for a grammar this small and fully specified.
package selector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/haltline/haltd/types"
)

// ErrReservedMode is returned when a selector uses the reserved "query"
// mode.
var ErrReservedMode = fmt.Errorf("selector mode %q is reserved and must be rejected", types.SelectorModeQuery)

// compoundRe matches "<slot>/<alpha><num>", e.g. "1/A1".
var compoundRe = regexp.MustCompile(`^(.*)/([A-Za-z]+)([0-9]+)$`)

// Parse validates a selector's syntax and returns an ordered list of
// "pattern items" ready for Expand. It does not touch inventory.
func Parse(sel types.Selector) ([]string, error) {
	switch sel.Mode {
	case types.SelectorModeQuery:
		return nil, ErrReservedMode
	case types.SelectorModeList:
		return parseList(sel.Value)
	case types.SelectorModeRange:
		item, err := parseRangeItem(sel.Value)
		if err != nil {
			return nil, err
		}
		return []string{item}, nil
	default:
		return nil, fmt.Errorf("unknown selector mode %q", sel.Mode)
	}
}

// parseList splits a comma-separated list into items, validating range
// syntax for any item containing "-" but not performing expansion yet.
func parseList(value string) ([]string, error) {
	raw := strings.Split(value, ",")
	items := make([]string, 0, len(raw))
	for _, r := range raw {
		item := strings.TrimSpace(r)
		if item == "" {
			return nil, fmt.Errorf("empty item in list selector %q", value)
		}
		if strings.Contains(item, "-") {
			if _, err := parseRangeItem(item); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// parseRangeItem validates a single range item's syntax ("a-b").
func parseRangeItem(item string) (string, error) {
	left, right, ok := splitRange(item)
	if !ok {
		return "", fmt.Errorf("malformed range %q: expected '<a>-<b>'", item)
	}
	if left == "" || right == "" {
		return "", fmt.Errorf("malformed range %q: empty endpoint", item)
	}
	return item, nil
}

// splitRange splits "a-b" on the last "-" so identifiers that themselves
// contain "-" are handled reasonably; compound identifiers use "/" before
// any "-", so this is unambiguous for the supported grammar.
func splitRange(item string) (left, right string, ok bool) {
	idx := strings.LastIndex(item, "-")
	if idx <= 0 || idx == len(item)-1 {
		return "", "", false
	}
	return item[:idx], item[idx+1:], true
}

// Expand parses and fully expands a selector into an ordered list of
// canonical ID patterns (not yet resolved against inventory — that's the
// inventory index's job; Expand only performs the textual expansion
// described in spec.md: numeric ranges inclusive, compound identifiers
// iterate the alpha axis as the outer loop).
func Expand(sel types.Selector) ([]string, error) {
	items, err := Parse(sel)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, item := range items {
		expanded, err := expandItem(item)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func expandItem(item string) ([]string, error) {
	if !strings.Contains(item, "-") {
		return []string{item}, nil
	}

	left, right, ok := splitRange(item)
	if !ok {
		return []string{item}, nil
	}

	if m1, m2 := compoundRe.FindStringSubmatch(left), compoundRe.FindStringSubmatch(right); m1 != nil && m2 != nil {
		return expandCompoundRange(m1, m2)
	}

	// Plain numeric range.
	if ln, lerr := strconv.Atoi(left); lerr == nil {
		if rn, rerr := strconv.Atoi(right); rerr == nil {
			return expandNumericRange(ln, rn)
		}
	}

	// Not a recognised range grammar; treat as a literal identifier
	// (callers passing e.g. hostnames with hyphens land here).
	return []string{item}, nil
}

// expandNumericRange expands "104-106" inclusively; "5-5" yields a single
// target.
func expandNumericRange(from, to int) ([]string, error) {
	if to < from {
		return nil, fmt.Errorf("invalid numeric range %d-%d: end before start", from, to)
	}
	out := make([]string, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, strconv.Itoa(n))
	}
	return out, nil
}

// expandCompoundRange expands "<slot>/<alpha><num>-<slot>/<alpha><num>".
// The alpha axis is the outer loop, the numeric axis the inner loop, per
// spec.md §4.1: "Range expansion for compound identifiers iterates the
// left axis as the outer loop" — here "left axis" is the alpha component.
func expandCompoundRange(left, right []string) ([]string, error) {
	slot := left[1]
	if right[1] != slot {
		return nil, fmt.Errorf("compound range slot mismatch: %q vs %q", left[1], right[1])
	}

	alphaFrom, alphaTo := left[2], right[2]
	numFrom, err := strconv.Atoi(left[3])
	if err != nil {
		return nil, fmt.Errorf("invalid compound range numeric start %q: %w", left[3], err)
	}
	numTo, err := strconv.Atoi(right[3])
	if err != nil {
		return nil, fmt.Errorf("invalid compound range numeric end %q: %w", right[3], err)
	}

	alphas, err := expandAlphaRange(alphaFrom, alphaTo)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, a := range alphas {
		nums, err := expandNumericRange(numFrom, numTo)
		if err != nil {
			return nil, err
		}
		for _, n := range nums {
			out = append(out, fmt.Sprintf("%s/%s%s", slot, a, n))
		}
	}
	return out, nil
}

// expandAlphaRange expands a single-letter lexicographic range inclusive,
// e.g. "A".."B" -> ["A", "B"]. Multi-letter alpha components are supported
// only as single steps (from == to); this matches every example in
// spec.md's grammar.
func expandAlphaRange(from, to string) ([]string, error) {
	if len(from) != 1 || len(to) != 1 {
		if from == to {
			return []string{from}, nil
		}
		return nil, fmt.Errorf("unsupported multi-letter alpha range %q-%q", from, to)
	}
	f, t := from[0], to[0]
	if t < f {
		return nil, fmt.Errorf("invalid alpha range %q-%q: end before start", from, to)
	}
	out := make([]string, 0, int(t-f)+1)
	for c := f; c <= t; c++ {
		out = append(out, string(c))
	}
	return out, nil
}
