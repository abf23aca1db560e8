// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resource

import "fmt"

// maxChainWalk bounds how far CheckChain follows successors.
const maxChainWalk = 64

// NextLookup returns the successor id of a known resource.
type NextLookup func(id string) (next string, ok bool)

// CheckChain verifies that following successors from start never loops.
// Only descriptors known to lookup are followed; an unknown id ends the walk.
func CheckChain(start string, lookup NextLookup) error {
	seen := map[string]struct{}{start: {}}
	cur := start
	for i := 0; i < maxChainWalk; i++ {
		next, ok := lookup(cur)
		if !ok || next == "" {
			return nil
		}
		if next == cur {
			return fmt.Errorf("%w: %q", ErrSelfReference, cur)
		}
		if _, dup := seen[next]; dup {
			return fmt.Errorf("%w: %q -> %q", ErrCircularChain, cur, next)
		}
		seen[next] = struct{}{}
		cur = next
	}
	return nil
}
