// Package viz renders offline views of a session: the group partition as a
// graphviz SVG and the placed piece layout as a PNG. Both are inspection
// aids used by the server's shutdown dump and cmd/debug.
package viz

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fogleman/gg"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
)

// RenderPartitionSVG draws one node per piece and an edge from each piece to
// its group anchor, which makes merged clusters visually obvious.
func RenderPartitionSVG(states map[string]*puzzle.PieceState, outputPath string) error {
	g := graphviz.New()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}

	nodeMap := make(map[string]*cgraph.Node)
	for _, id := range puzzle.SortedIDs(states) {
		st := states[id]
		n, err := graph.CreateNode(id)
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(fmt.Sprintf("%s g=%s (%.1f,%.1f,%.1f)", id, st.GroupID, st.Position.X, st.Position.Y, st.Position.Z))
		nodeMap[id] = n
	}

	var edgeCounter uint64
	for _, id := range puzzle.SortedIDs(states) {
		st := states[id]
		if st.GroupID == id {
			continue
		}
		anchor, ok := nodeMap[st.GroupID]
		if !ok {
			// A lazily-created state can anchor on an id with no piece of
			// its own; synthesize the anchor node.
			anchor, err = graph.CreateNode(st.GroupID)
			if err != nil {
				return fmt.Errorf("failed to create anchor node: %w", err)
			}
			nodeMap[st.GroupID] = anchor
		}
		if _, err := graph.CreateEdge(strconv.Itoa(int(atomic.AddUint64(&edgeCounter, 1))), nodeMap[id], anchor); err != nil {
			return fmt.Errorf("failed to create edge: %w", err)
		}
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), os.ModePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

// RenderLayoutPNG draws a top-down view of the placed pieces: each bounding
// box filled with the piece's representative color at its current position.
func RenderLayoutPNG(pieces map[string]puzzle.Piece, states map[string]*puzzle.PieceState, outputPath string) error {
	minX, minZ := math.MaxFloat64, math.MaxFloat64
	maxX, maxZ := -math.MaxFloat64, -math.MaxFloat64
	for id, st := range states {
		p, ok := pieces[id]
		if !ok {
			continue
		}
		w := p.Bounds.Max.X - p.Bounds.Min.X
		d := p.Bounds.Max.Z - p.Bounds.Min.Z
		minX = math.Min(minX, st.Position.X-w/2)
		minZ = math.Min(minZ, st.Position.Z-d/2)
		maxX = math.Max(maxX, st.Position.X+w/2)
		maxZ = math.Max(maxZ, st.Position.Z+d/2)
	}
	if minX > maxX {
		return fmt.Errorf("nothing to render")
	}

	const scale, margin = 4.0, 16.0
	width := int((maxX-minX)*scale + margin*2)
	height := int((maxZ-minZ)*scale + margin*2)
	dc := gg.NewContext(width, height)
	dc.SetRGB(0.1, 0.1, 0.12)
	dc.Clear()

	for _, id := range puzzle.SortedIDs(states) {
		p, ok := pieces[id]
		if !ok {
			continue
		}
		st := states[id]
		w := (p.Bounds.Max.X - p.Bounds.Min.X) * scale
		d := (p.Bounds.Max.Z - p.Bounds.Min.Z) * scale
		x := (st.Position.X-minX)*scale + margin - w/2
		z := (st.Position.Z-minZ)*scale + margin - d/2
		dc.DrawRectangle(x, z, w, d)
		dc.SetRGB255(int(p.Color>>16&0xff), int(p.Color>>8&0xff), int(p.Color&0xff))
		dc.FillPreserve()
		if st.Solved {
			dc.SetRGB(1, 1, 1)
		} else {
			dc.SetRGB(0, 0, 0)
		}
		dc.SetLineWidth(1)
		dc.Stroke()
	}
	if err := dc.SavePNG(outputPath); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

// RenderToTemp renders both views into the temp dir and returns their paths.
func RenderToTemp(pieces map[string]puzzle.Piece, states map[string]*puzzle.PieceState) (svgPath, pngPath string, err error) {
	base := filepath.Join(os.TempDir(), fmt.Sprintf("%d%d", time.Now().UnixNano(), rand.Int()))
	svgPath = base + ".svg"
	pngPath = base + ".png"
	if err := RenderPartitionSVG(states, svgPath); err != nil {
		return "", "", err
	}
	if err := RenderLayoutPNG(pieces, states, pngPath); err != nil {
		return "", "", err
	}
	return svgPath, pngPath, nil
}
