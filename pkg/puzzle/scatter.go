package puzzle

import (
	"math/rand"
	"sort"
)

// Scatter derives a deterministic spawn position for each piece id from the
// session's scatter seed. Positions land on the floor plane within radius of
// the origin. The same (seed, ids) pair always yields the same layout, which
// is what lets a rejoining client recompute nothing: the server hands it the
// live states instead.
func Scatter(seed int64, pieceIDs []string, radius float64) map[string]Vec3 {
	sorted := make([]string, len(pieceIDs))
	copy(sorted, pieceIDs)
	sort.Strings(sorted)

	rng := rand.New(rand.NewSource(seed))
	out := make(map[string]Vec3, len(sorted))
	for _, id := range sorted {
		out[id] = Vec3{
			X: (rng.Float64()*2 - 1) * radius,
			Y: FloorY,
			Z: (rng.Float64()*2 - 1) * radius,
		}
	}
	return out
}
