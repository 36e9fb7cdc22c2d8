package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Selection is one option index for single-select questions, or a set of indices for
// multi-select ones. It decodes from either a bare number or an array.
type Selection []int

// Single builds a one-option selection.
func Single(i int) Selection { return Selection{i} }

// Multi builds a set selection, dropping duplicates.
func Multi(indices ...int) Selection {
	return Selection(indices).Normalize()
}

// Normalize returns a sorted copy without duplicates.
func (s Selection) Normalize() Selection {
	if len(s) == 0 {
		return nil
	}
	out := append(Selection(nil), s...)
	sort.Ints(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}

// Contains reports whether idx is selected.
func (s Selection) Contains(idx int) bool {
	for _, v := range s {
		if v == idx {
			return true
		}
	}
	return false
}

// Empty reports whether nothing was selected.
func (s Selection) Empty() bool { return len(s) == 0 }

// UnmarshalJSON accepts `2`, `[0,2]` and `null`.
func (s *Selection) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var many []int
		if err := json.Unmarshal(data, &many); err != nil {
			return fmt.Errorf("selection: %w", err)
		}
		*s = many
		return nil
	}
	var one int
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	*s = Selection{one}
	return nil
}
