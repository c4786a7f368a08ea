package puzzle

// SnapThreshold is the maximum snap error (in placed-space distance units)
// at which a pair of pieces qualifies as a snap candidate.
const SnapThreshold = 4.0

// SnapCandidate records the first qualifying pair found during a drag tick.
type SnapCandidate struct {
	MoverPieceID  string
	TargetPieceID string
	TargetGroupID string
	Error         float64
}

// FindSnapCandidate scans every piece of the mover group against every piece
// of a different group. The snap error for a pair is the distance between
// their current placed-space offset and the ideal offset implied by their
// segmentation centroids, both measured in the horizontal plane. The first
// pair below threshold wins; iteration is over lexically sorted piece ids so
// the tie-break is deterministic.
func FindSnapCandidate(pieces map[string]Piece, states map[string]*PieceState, moverGroupID string, threshold float64) (SnapCandidate, bool) {
	ids := SortedIDs(states)
	var movers, targets []string
	for _, id := range ids {
		if states[id].GroupID == moverGroupID {
			movers = append(movers, id)
		} else {
			targets = append(targets, id)
		}
	}
	for _, m := range movers {
		mp, ok := pieces[m]
		if !ok {
			continue
		}
		ms := states[m]
		for _, t := range targets {
			tp, ok := pieces[t]
			if !ok {
				continue
			}
			ts := states[t]
			placed := ts.Position.Sub(ms.Position)
			ideal := tp.Centroid.Sub(mp.Centroid)
			if err := DistXZ(placed, ideal); err < threshold {
				return SnapCandidate{
					MoverPieceID:  m,
					TargetPieceID: t,
					TargetGroupID: ts.GroupID,
					Error:         err,
				}, true
			}
		}
	}
	return SnapCandidate{}, false
}

// AlignOffset solves for the translation that puts the mover piece exactly at
// the position implied by the target piece's placement and their segmentation
// centroids. The vertical component brings the mover to the target's current
// resting height.
func AlignOffset(pieces map[string]Piece, states map[string]*PieceState, moverPieceID, targetPieceID string) Vec3 {
	mp := pieces[moverPieceID]
	tp := pieces[targetPieceID]
	ms := states[moverPieceID]
	ts := states[targetPieceID]
	ideal := Vec3{
		X: ts.Position.X + (mp.Centroid.X - tp.Centroid.X),
		Y: ts.Position.Y,
		Z: ts.Position.Z + (mp.Centroid.Z - tp.Centroid.Z),
	}
	return ideal.Sub(ms.Position)
}
