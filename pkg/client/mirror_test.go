package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/voxelpuzzle/pkg/protocol"
	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
)

// Three loose pieces whose segmentation centroids sit 2 units apart on X.
func joinedFixture() *protocol.SessionJoined {
	return &protocol.SessionJoined{
		Session: protocol.SessionSummary{SessionID: "s1", MapID: "meadow", Difficulty: "easy", Status: "active"},
		Config:  puzzle.SessionConfig{ScatterSeed: 1, RandomFactor: 0.5},
		Pieces: []puzzle.Piece{
			{ID: "p1", Centroid: puzzle.Vec3{X: 0}},
			{ID: "p2", Centroid: puzzle.Vec3{X: 2}},
			{ID: "p3", Centroid: puzzle.Vec3{X: 4}},
		},
		CurrentStates: map[string]puzzle.PieceState{
			"p1": {ID: "p1", GroupID: "p1", Position: puzzle.Vec3{X: 0}},
			"p2": {ID: "p2", GroupID: "p2", Position: puzzle.Vec3{X: 20}},
			"p3": {ID: "p3", GroupID: "p3", Position: puzzle.Vec3{X: 40}},
		},
	}
}

func newJoinedMirror() *Mirror {
	m := NewMirror()
	m.ApplySessionJoined(joinedFixture())
	return m
}

func TestApplySessionJoinedMirrorsSnapshot(t *testing.T) {
	m := newJoinedMirror()
	assert.Equal(t, []string{"p1", "p2", "p3"}, m.PieceIDs())
	assert.Equal(t, 3, m.GroupCount())
	pos, ok := m.PositionOf("p2")
	require.True(t, ok)
	assert.Equal(t, puzzle.Vec3{X: 20}, pos)
	assert.False(t, m.Complete())
}

func TestDragLifecycleLegality(t *testing.T) {
	m := newJoinedMirror()

	_, err := m.DragMove(puzzle.Vec3{X: 1})
	assert.ErrorIs(t, err, ErrNoDragInFlight)
	_, err = m.DragEnd()
	assert.ErrorIs(t, err, ErrNoDragInFlight)

	require.NoError(t, m.DragStart("p1"))
	assert.ErrorIs(t, m.DragStart("p2"), ErrDragInProgress)
	assert.ErrorIs(t, m.DragStart("p1"), ErrDragInProgress)

	_, err = m.DragEnd()
	require.NoError(t, err)
	assert.ErrorIs(t, m.DragStart("nope"), ErrUnknownPiece)
	require.NoError(t, m.DragStart("p1"))
	_, err = m.DragEnd()
	require.NoError(t, err)
}

func TestDragStartIllegalOnceComplete(t *testing.T) {
	m := newJoinedMirror()
	m.ApplyGroupMerged(&protocol.GroupMerged{SourceGroupID: "p2", TargetGroupID: "p1"})
	m.ApplyGroupMerged(&protocol.GroupMerged{SourceGroupID: "p3", TargetGroupID: "p1"})
	require.True(t, m.Complete())
	assert.ErrorIs(t, m.DragStart("p1"), ErrPuzzleComplete)
}

func TestDragMoveTranslatesGroupAndEmitsIntents(t *testing.T) {
	m := newJoinedMirror()
	m.ApplyGroupMerged(&protocol.GroupMerged{SourceGroupID: "p2", TargetGroupID: "p1", AlignOffset: puzzle.Vec3{X: -18}})
	require.Equal(t, 2, m.GroupCount())

	require.NoError(t, m.DragStart("p2"))
	intents, err := m.DragMove(puzzle.Vec3{X: 1, Z: -1})
	require.NoError(t, err)
	require.Len(t, intents, 2, "one intent per piece of the dragged group")
	assert.Equal(t, "p1", intents[0].PieceID)
	assert.Equal(t, puzzle.Vec3{X: 1, Z: -1}, intents[0].Position)
	assert.Equal(t, "p2", intents[1].PieceID)
	assert.Equal(t, puzzle.Vec3{X: 3, Z: -1}, intents[1].Position)

	pos, _ := m.PositionOf("p3")
	assert.Equal(t, puzzle.Vec3{X: 40}, pos, "pieces outside the dragged group stay put")
}

func TestRemoteMoveForDraggedGroupIsDiscarded(t *testing.T) {
	m := newJoinedMirror()
	require.NoError(t, m.DragStart("p1"))

	m.ApplyPieceMoved(&protocol.PieceMoved{PieceID: "p1", Position: puzzle.Vec3{X: 99}, GroupID: "p1"})
	pos, _ := m.PositionOf("p1")
	assert.Equal(t, puzzle.Vec3{X: 0}, pos, "the local speculative position wins during the gesture")

	m.ApplyPieceMoved(&protocol.PieceMoved{PieceID: "p3", Position: puzzle.Vec3{X: 55}, GroupID: "p3"})
	pos, _ = m.PositionOf("p3")
	assert.Equal(t, puzzle.Vec3{X: 55}, pos, "other groups' deltas apply normally")

	_, err := m.DragEnd()
	require.NoError(t, err)
	m.ApplyPieceMoved(&protocol.PieceMoved{PieceID: "p1", Position: puzzle.Vec3{X: 99}, GroupID: "p1"})
	pos, _ = m.PositionOf("p1")
	assert.Equal(t, puzzle.Vec3{X: 99}, pos, "after the drag ends remote deltas apply again")
}

func TestRemoteMergeRelabelsInFlightDragGroup(t *testing.T) {
	m := newJoinedMirror()
	require.NoError(t, m.DragStart("p1"))

	m.ApplyGroupMerged(&protocol.GroupMerged{SourceGroupID: "p1", TargetGroupID: "p2"})
	assert.True(t, m.Dragging())

	intents, err := m.DragMove(puzzle.Vec3{Z: 2})
	require.NoError(t, err)
	assert.Len(t, intents, 2, "the gesture follows the surviving group")
}

func TestApplyGroupMergedReplaysAndDerivesCompletion(t *testing.T) {
	m := newJoinedMirror()
	m.ApplyGroupMerged(&protocol.GroupMerged{SourceGroupID: "p2", TargetGroupID: "p1", AlignOffset: puzzle.Vec3{X: -18}})
	assert.Equal(t, 2, m.GroupCount())
	pos, _ := m.PositionOf("p2")
	assert.Equal(t, puzzle.Vec3{X: 2}, pos)
	assert.False(t, m.Complete())

	// Completion is re-derived from the partition, never trusted from a
	// server flag.
	m.ApplyGroupMerged(&protocol.GroupMerged{SourceGroupID: "p3", TargetGroupID: "p1", AlignOffset: puzzle.Vec3{X: -36}})
	assert.True(t, m.Complete())
	pos, _ = m.PositionOf("p3")
	assert.Equal(t, puzzle.FloorY, pos.Y)
}

func TestDragEndWithSnapMergesAndEmitsSingleIntent(t *testing.T) {
	m := newJoinedMirror()
	require.NoError(t, m.DragStart("p1"))

	// Walk p1 to within the snap threshold of its ideal offset from p2
	// (ideal placed offset is 2 on X; p2 sits at 20).
	intents, err := m.DragMove(puzzle.Vec3{X: 17})
	require.NoError(t, err)
	require.Len(t, intents, 1)

	merge, err := m.DragEnd()
	require.NoError(t, err)
	require.NotNil(t, merge, "a qualifying snap candidate must produce a merge intent")
	assert.Equal(t, "p1", merge.SourceGroupID)
	assert.Equal(t, "p2", merge.TargetGroupID)

	assert.Equal(t, 2, m.GroupCount())
	p1Pos, _ := m.PositionOf("p1")
	p2Pos, _ := m.PositionOf("p2")
	assert.InDelta(t, 2.0, p2Pos.X-p1Pos.X, 1e-9, "alignment must be exact after the merge")
	assert.False(t, m.Dragging())
}

func TestDragEndWithoutSnapLeavesPiecesWhereDropped(t *testing.T) {
	m := newJoinedMirror()
	require.NoError(t, m.DragStart("p1"))
	_, err := m.DragMove(puzzle.Vec3{X: 5})
	require.NoError(t, err)

	merge, err := m.DragEnd()
	require.NoError(t, err)
	assert.Nil(t, merge)
	pos, _ := m.PositionOf("p1")
	assert.Equal(t, puzzle.Vec3{X: 5}, pos)
	assert.Equal(t, 3, m.GroupCount())
}

func TestApplyGameCompletedDerivesNotTrusts(t *testing.T) {
	m := newJoinedMirror()
	m.ApplyGameCompleted(&protocol.GameCompleted{})
	assert.False(t, m.Complete(), "three groups remain, a stray GAME_COMPLETED changes nothing")

	m.ApplyGroupMerged(&protocol.GroupMerged{SourceGroupID: "p2", TargetGroupID: "p1"})
	m.ApplyGroupMerged(&protocol.GroupMerged{SourceGroupID: "p3", TargetGroupID: "p1"})
	m.ApplyGameCompleted(&protocol.GameCompleted{})
	assert.True(t, m.Complete())
}
