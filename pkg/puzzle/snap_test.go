package puzzle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two pieces whose segmentation centroids are 2 units apart on the X axis.
func snapFixture() (map[string]Piece, map[string]*PieceState) {
	pieces := map[string]Piece{
		"mover":  {ID: "mover", Centroid: Vec3{X: 0, Z: 0}},
		"target": {ID: "target", Centroid: Vec3{X: 2, Z: 0}},
	}
	states := map[string]*PieceState{
		"mover":  {ID: "mover", GroupID: "mover"},
		"target": {ID: "target", GroupID: "target"},
	}
	return pieces, states
}

func TestSnapCandidateWithinThreshold(t *testing.T) {
	pieces, states := snapFixture()
	states["mover"].Position = Vec3{X: 0}
	states["target"].Position = Vec3{X: 2.1}

	cand, ok := FindSnapCandidate(pieces, states, "mover", SnapThreshold)
	require.True(t, ok)
	assert.Equal(t, "mover", cand.MoverPieceID)
	assert.Equal(t, "target", cand.TargetPieceID)
	assert.Equal(t, "target", cand.TargetGroupID)
	assert.InDelta(t, 0.1, cand.Error, 1e-9)
}

func TestSnapCandidateOutsideThreshold(t *testing.T) {
	pieces, states := snapFixture()
	states["mover"].Position = Vec3{X: 0}
	states["target"].Position = Vec3{X: 10}

	_, ok := FindSnapCandidate(pieces, states, "mover", SnapThreshold)
	assert.False(t, ok, "error of 8 must not qualify against threshold 4")
}

func TestSnapIgnoresVerticalAxis(t *testing.T) {
	pieces, states := snapFixture()
	states["mover"].Position = Vec3{X: 0, Y: 0}
	states["target"].Position = Vec3{X: 2, Y: 50}

	_, ok := FindSnapCandidate(pieces, states, "mover", SnapThreshold)
	assert.True(t, ok, "a large vertical offset must not disqualify the pair")
}

func TestSnapSkipsSameGroupPairs(t *testing.T) {
	pieces, states := snapFixture()
	states["target"].GroupID = "mover"
	states["mover"].Position = Vec3{X: 0}
	states["target"].Position = Vec3{X: 2}

	_, ok := FindSnapCandidate(pieces, states, "mover", SnapThreshold)
	assert.False(t, ok, "pieces already grouped together are not candidates")
}

func TestSnapFirstMatchWinsDeterministically(t *testing.T) {
	pieces := map[string]Piece{
		"a1": {ID: "a1", Centroid: Vec3{X: 0}},
		"b1": {ID: "b1", Centroid: Vec3{X: 1}},
		"b2": {ID: "b2", Centroid: Vec3{X: 2}},
	}
	// Both b1 and b2 are perfectly aligned with a1; the lexically first
	// target must win every time.
	states := map[string]*PieceState{
		"a1": {ID: "a1", GroupID: "a1", Position: Vec3{X: 0}},
		"b1": {ID: "b1", GroupID: "b1", Position: Vec3{X: 1}},
		"b2": {ID: "b2", GroupID: "b2", Position: Vec3{X: 2}},
	}
	for i := 0; i < 10; i++ {
		cand, ok := FindSnapCandidate(pieces, states, "a1", SnapThreshold)
		require.True(t, ok)
		assert.Equal(t, "b1", cand.TargetPieceID)
	}
}

func TestAlignOffsetProducesExactPlacement(t *testing.T) {
	pieces, states := snapFixture()
	states["mover"].Position = Vec3{X: 0.3, Y: 1.2, Z: -0.4}
	states["target"].Position = Vec3{X: 2.1, Y: 0, Z: 0.2}

	offset := AlignOffset(pieces, states, "mover", "target")
	placed := states["mover"].Position.Add(offset)

	// After alignment the placed-space offset equals the segmentation-space
	// ideal exactly.
	assert.InDelta(t, 2.0, states["target"].Position.X-placed.X, 1e-9)
	assert.InDelta(t, 0.0, states["target"].Position.Z-placed.Z, 1e-9)
	assert.InDelta(t, states["target"].Position.Y, placed.Y, 1e-9)
}
