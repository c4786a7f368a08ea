// Package segment turns a pair of equal-sized rasters (a color map and a
// depth map) into the voxelized piece set a new session starts from. It is a
// pure function of its inputs: the same rasters, difficulty, and variance
// always produce the same regions.
package segment

import (
	"fmt"
	"image"
	"math"
	"math/rand"

	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
)

// Difficulty selects how many pieces the source image is cut into.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyNormal, DifficultyHard:
		return Difficulty(s), nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// gridSize is the seed lattice dimension; the piece count is its square.
func (d Difficulty) gridSize() int {
	switch d {
	case DifficultyEasy:
		return 4
	case DifficultyHard:
		return 8
	default:
		return 6
	}
}

// cellsPerSeed controls the voxel lattice resolution relative to the grid.
const cellsPerSeed = 8

// maxDepth is the number of depth levels the depth raster is quantized into.
const maxDepth = 4

// Region is one contiguous-ish segment of the source image.
type Region struct {
	ID    string        `json:"id"`
	Cells []puzzle.Cell `json:"cells"`
}

// Result is what the session core consumes to materialize pieces.
type Result struct {
	Regions  []Region `json:"regions"`
	GridSize int      `json:"gridSize"`
}

// Segment partitions the voxel lattice derived from the rasters into regions
// via a jittered-seed nearest-neighbour pass. Variance scales the jitter; the
// jitter itself is seeded from the image content and the variance so the
// function stays deterministic.
func Segment(colorImg, depthImg image.Image, difficulty Difficulty, variance float64) (Result, error) {
	if colorImg == nil || depthImg == nil {
		return Result{}, fmt.Errorf("both rasters are required")
	}
	cb, db := colorImg.Bounds(), depthImg.Bounds()
	if cb.Dx() != db.Dx() || cb.Dy() != db.Dy() {
		return Result{}, fmt.Errorf("raster sizes differ: color %dx%d, depth %dx%d", cb.Dx(), cb.Dy(), db.Dx(), db.Dy())
	}
	if cb.Dx() == 0 || cb.Dy() == 0 {
		return Result{}, fmt.Errorf("rasters are empty")
	}

	grid := difficulty.gridSize()
	lattice := grid * cellsPerSeed

	// The seed folds in sampled pixel content so two different images of the
	// same size do not share region boundaries.
	var content int64
	for y := cb.Min.Y; y < cb.Max.Y; y += cellsPerSeed {
		for x := cb.Min.X; x < cb.Max.X; x += cellsPerSeed {
			content = content*1099511628211 + int64(packColor(colorImg, x, y))
		}
	}
	rng := rand.New(rand.NewSource(content ^ int64(cb.Dx())<<20 ^ int64(cb.Dy())<<10 ^ int64(variance*1e6)))
	jitter := variance * float64(cellsPerSeed) / 2

	type seed struct{ x, y float64 }
	seeds := make([]seed, 0, grid*grid)
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			seeds = append(seeds, seed{
				x: (float64(gx)+0.5)*float64(cellsPerSeed) + (rng.Float64()*2-1)*jitter,
				y: (float64(gy)+0.5)*float64(cellsPerSeed) + (rng.Float64()*2-1)*jitter,
			})
		}
	}

	regions := make([]Region, len(seeds))
	for i := range regions {
		regions[i] = Region{ID: fmt.Sprintf("piece-%03d", i)}
	}

	for cy := 0; cy < lattice; cy++ {
		for cx := 0; cx < lattice; cx++ {
			best, bestDist := 0, math.MaxFloat64
			for i, s := range seeds {
				d := math.Hypot(float64(cx)+0.5-s.x, float64(cy)+0.5-s.y)
				if d < bestDist {
					best, bestDist = i, d
				}
			}
			px := cb.Min.X + cx*cb.Dx()/lattice
			py := cb.Min.Y + cy*cb.Dy()/lattice
			regions[best].Cells = append(regions[best].Cells, puzzle.Cell{
				X:     cx,
				Y:     cy,
				Depth: depthLevel(depthImg, db.Min.X+cx*db.Dx()/lattice, db.Min.Y+cy*db.Dy()/lattice),
				Color: packColor(colorImg, px, py),
			})
		}
	}

	// Jitter can starve a seed of cells entirely; such regions are dropped
	// rather than surfaced as empty pieces.
	kept := regions[:0]
	for _, r := range regions {
		if len(r.Cells) > 0 {
			kept = append(kept, r)
		}
	}
	return Result{Regions: kept, GridSize: grid}, nil
}

// BuildPieces derives the immutable piece descriptors from a segmentation
// result: per-region centroid, bounds, and a representative (mean) color.
func BuildPieces(res Result) []puzzle.Piece {
	pieces := make([]puzzle.Piece, 0, len(res.Regions))
	for _, r := range res.Regions {
		var sx, sy float64
		var sr, sg, sb uint64
		bounds := puzzle.Box{
			Min: puzzle.Vec3{X: math.MaxFloat64, Z: math.MaxFloat64},
			Max: puzzle.Vec3{X: -math.MaxFloat64, Z: -math.MaxFloat64},
		}
		for _, c := range r.Cells {
			sx += float64(c.X)
			sy += float64(c.Y)
			sr += uint64(c.Color >> 16 & 0xff)
			sg += uint64(c.Color >> 8 & 0xff)
			sb += uint64(c.Color & 0xff)
			bounds.Min.X = math.Min(bounds.Min.X, float64(c.X))
			bounds.Min.Z = math.Min(bounds.Min.Z, float64(c.Y))
			bounds.Max.X = math.Max(bounds.Max.X, float64(c.X)+1)
			bounds.Max.Z = math.Max(bounds.Max.Z, float64(c.Y)+1)
			bounds.Max.Y = math.Max(bounds.Max.Y, float64(c.Depth))
		}
		n := uint64(len(r.Cells))
		pieces = append(pieces, puzzle.Piece{
			ID:    r.ID,
			Color: uint32(sr/n)<<16 | uint32(sg/n)<<8 | uint32(sb/n),
			Cells: r.Cells,
			Centroid: puzzle.Vec3{
				X: sx / float64(n),
				Y: 0,
				Z: sy / float64(n),
			},
			Bounds: bounds,
		})
	}
	return pieces
}

func packColor(img image.Image, x, y int) uint32 {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint32(r>>8)<<16 | uint32(g>>8)<<8 | uint32(b>>8)
}

func depthLevel(img image.Image, x, y int) int {
	r, g, b, _ := img.At(x, y).RGBA()
	gray := (r + g + b) / 3 >> 8
	return int(gray) * maxDepth / 256
}
