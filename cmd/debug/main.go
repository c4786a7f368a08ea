package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
	"github.com/astromechza/voxelpuzzle/pkg/registry"
	"github.com/astromechza/voxelpuzzle/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	renderVar := flag.Bool("render", false, "also render the partition and layout to temp files")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one positional argument: the session snapshot to read")
	}
	snap, err := registry.ReadSnapshot(flag.Arg(0))
	if err != nil {
		return err
	}

	states := snap.StateMap()
	slog.Info("loaded session", "session", snap.ID, "map", snap.MapID, "difficulty", snap.Difficulty, "status", snap.Status)
	slog.Info("partition", "pieces", len(states), "groups", puzzle.GroupCount(states), "complete", puzzle.IsComplete(states))

	slog.Info("states:")
	for i, id := range puzzle.SortedIDs(states) {
		st := states[id]
		slog.Info("state", "i", fmt.Sprintf("%4d", i), "piece", id, "group", st.GroupID, "pos", fmt.Sprintf("(%.1f,%.1f,%.1f)", st.Position.X, st.Position.Y, st.Position.Z), "solved", st.Solved)
	}

	fmt.Println(`digraph "partition" {`)
	for _, id := range puzzle.SortedIDs(states) {
		st := states[id]
		fmt.Printf("    %q [label=\"%s g=%s\"]\n", id, id, st.GroupID)
		if st.GroupID != id {
			fmt.Printf("    %q -> %q\n", id, st.GroupID)
		}
	}
	fmt.Println("}")

	if *renderVar {
		svgPath, pngPath, err := viz.RenderToTemp(snap.PieceMap(), states)
		if err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
		slog.Info("rendered", "svg", "file://"+svgPath, "png", "file://"+pngPath)
	}
	return nil
}
