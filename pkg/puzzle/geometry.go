package puzzle

import "math"

// Vec3 is a position or translation in placed space. Y is the vertical
// (resting) axis; segmentation-space x/y map onto X/Z.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// DistXZ is the euclidean distance between two vectors ignoring the
// vertical axis.
func DistXZ(a, b Vec3) float64 {
	return math.Hypot(a.X-b.X, a.Z-b.Z)
}

// Cell is one voxel of a piece surface in segmentation space.
type Cell struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Depth int    `json:"depth"`
	Color uint32 `json:"color"`
}

// Box is an axis-aligned bounding box in segmentation space.
type Box struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Piece is the immutable geometric descriptor produced by segmentation.
// It is created once at session start and never mutated afterwards.
type Piece struct {
	ID       string `json:"id"`
	Color    uint32 `json:"color"`
	Cells    []Cell `json:"cells"`
	Centroid Vec3   `json:"centroid"`
	Bounds   Box    `json:"bounds"`
}

// PieceState is the mutable runtime record for a piece. The session store
// owns these; clients hold mirrors.
type PieceState struct {
	ID       string `json:"pieceId"`
	Position Vec3   `json:"position"`
	GroupID  string `json:"groupId"`
	Solved   bool   `json:"isSolved"`
}

// SessionConfig holds the per-session immutable parameters generated at
// session creation. RandomFactor is consumed by segmentation only and kept
// here so rejoining clients see the same value.
type SessionConfig struct {
	ScatterSeed  int64   `json:"scatterSeed"`
	RandomFactor float64 `json:"randomFactor"`
}
