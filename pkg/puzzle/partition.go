package puzzle

import "sort"

// FloorY is the canonical resting height pieces snap to when the puzzle
// completes.
const FloorY = 0.0

// Merge reassigns every state in sourceGroupID to targetGroupID and
// translates each reassigned piece by align. A merge of a group onto itself
// is a no-op. Returns the number of pieces reassigned.
//
// Reapplying a merge with the same arguments is a no-op on membership (the
// source group no longer exists) but would re-translate if any piece still
// carried the source group id, so callers must not replay deltas.
func Merge(states map[string]*PieceState, sourceGroupID, targetGroupID string, align Vec3) int {
	if sourceGroupID == targetGroupID {
		return 0
	}
	moved := 0
	for _, st := range states {
		if st.GroupID == sourceGroupID {
			st.GroupID = targetGroupID
			st.Position = st.Position.Add(align)
			moved++
		}
	}
	return moved
}

// GroupCount returns the number of distinct groups in the partition.
func GroupCount(states map[string]*PieceState) int {
	seen := make(map[string]struct{}, len(states))
	for _, st := range states {
		seen[st.GroupID] = struct{}{}
	}
	return len(seen)
}

// IsComplete reports whether the partition has collapsed to a single group.
// A session with one piece is trivially complete; an empty one never is.
func IsComplete(states map[string]*PieceState) bool {
	return len(states) >= 1 && GroupCount(states) == 1
}

// CompleteAll snaps every piece's vertical coordinate to the floor and marks
// it solved. Idempotent; callers fire it once on the transition to a single
// group and it is never undone.
func CompleteAll(states map[string]*PieceState) {
	for _, st := range states {
		st.Position.Y = FloorY
		st.Solved = true
	}
}

// SortedIDs returns the state keys in lexical order. Merge iteration over the
// raw map is order-independent, but snap detection and intent emission need a
// deterministic walk.
func SortedIDs(states map[string]*PieceState) []string {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
