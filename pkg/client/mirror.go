// Package client holds the client side of the session protocol: a local
// mirror of the authoritative piece states, the optimistic drag state
// machine, and a reconnecting websocket transport.
package client

import (
	"errors"
	"fmt"

	"github.com/astromechza/voxelpuzzle/pkg/protocol"
	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
)

var (
	ErrDragInProgress = errors.New("another drag is already in progress")
	ErrPuzzleComplete = errors.New("puzzle is already complete")
	ErrUnknownPiece   = errors.New("unknown piece")
	ErrNoDragInFlight = errors.New("no drag in progress")
)

// Mirror is the local read-mirror of a session plus the speculative overlay
// of the in-flight drag gesture. It is not safe for concurrent use; callers
// serialize access (the demo client uses a mutex around it).
type Mirror struct {
	session protocol.SessionSummary
	config  puzzle.SessionConfig
	pieces  map[string]puzzle.Piece
	states  map[string]*puzzle.PieceState

	dragGroup string
	snap      puzzle.SnapCandidate
	snapSet   bool
}

func NewMirror() *Mirror {
	return &Mirror{
		pieces: make(map[string]puzzle.Piece),
		states: make(map[string]*puzzle.PieceState),
	}
}

// ApplySessionJoined replaces the mirror with the authoritative snapshot.
// Any in-flight drag is abandoned: the server's truth wins on (re)join.
func (m *Mirror) ApplySessionJoined(msg *protocol.SessionJoined) {
	m.session = msg.Session
	m.config = msg.Config
	m.pieces = make(map[string]puzzle.Piece, len(msg.Pieces))
	for _, p := range msg.Pieces {
		m.pieces[p.ID] = p
	}
	m.states = make(map[string]*puzzle.PieceState, len(msg.CurrentStates))
	for id, st := range msg.CurrentStates {
		copied := st
		m.states[id] = &copied
	}
	m.dragGroup = ""
	m.snapSet = false
}

// ApplyPieceMoved folds a remote move into the mirror. Deltas for pieces in
// the group this client is itself dragging are discarded: the local
// speculative position is more current for the duration of the gesture.
func (m *Mirror) ApplyPieceMoved(msg *protocol.PieceMoved) {
	st, ok := m.states[msg.PieceID]
	if !ok {
		st = &puzzle.PieceState{ID: msg.PieceID, GroupID: msg.GroupID}
		m.states[msg.PieceID] = st
	}
	if m.dragGroup != "" && st.GroupID == m.dragGroup {
		return
	}
	st.Position = msg.Position
	st.GroupID = msg.GroupID
}

// ApplyGroupMerged replays the authoritative translate-and-relabel locally
// and re-derives completion from the resulting partition rather than trusting
// any server-sent flag. A merge that consumes the locally-dragged group
// follows the relabel so the gesture keeps addressing the surviving group.
func (m *Mirror) ApplyGroupMerged(msg *protocol.GroupMerged) {
	puzzle.Merge(m.states, msg.SourceGroupID, msg.TargetGroupID, msg.AlignOffset)
	if m.dragGroup == msg.SourceGroupID {
		m.dragGroup = msg.TargetGroupID
	}
	m.deriveCompletion()
}

// ApplyGameCompleted re-derives rather than trusts: the partition itself is
// the source of truth for completeness.
func (m *Mirror) ApplyGameCompleted(*protocol.GameCompleted) {
	m.deriveCompletion()
}

func (m *Mirror) deriveCompletion() {
	if puzzle.IsComplete(m.states) {
		puzzle.CompleteAll(m.states)
		m.session.Status = "completed"
	}
}

// Apply dispatches any server message into the mirror. Unknown kinds are
// impossible by construction of protocol.Decode.
func (m *Mirror) Apply(msg protocol.Message) {
	switch v := msg.(type) {
	case *protocol.SessionJoined:
		m.ApplySessionJoined(v)
	case *protocol.PieceMoved:
		m.ApplyPieceMoved(v)
	case *protocol.GroupMerged:
		m.ApplyGroupMerged(v)
	case *protocol.GameCompleted:
		m.ApplyGameCompleted(v)
	}
}

func (m *Mirror) Complete() bool {
	return puzzle.IsComplete(m.states)
}

func (m *Mirror) Dragging() bool {
	return m.dragGroup != ""
}

// GroupOf returns the current group of a piece, or "" if unknown.
func (m *Mirror) GroupOf(pieceID string) string {
	if st, ok := m.states[pieceID]; ok {
		return st.GroupID
	}
	return ""
}

// PositionOf returns the mirrored position of a piece.
func (m *Mirror) PositionOf(pieceID string) (puzzle.Vec3, bool) {
	if st, ok := m.states[pieceID]; ok {
		return st.Position, true
	}
	return puzzle.Vec3{}, false
}

// Piece returns the immutable descriptor for a piece id.
func (m *Mirror) Piece(pieceID string) (puzzle.Piece, bool) {
	p, ok := m.pieces[pieceID]
	return p, ok
}

// PieceIDs returns the known piece ids in lexical order.
func (m *Mirror) PieceIDs() []string {
	return puzzle.SortedIDs(m.states)
}

// GroupCount exposes the mirrored partition size.
func (m *Mirror) GroupCount() int {
	return puzzle.GroupCount(m.states)
}

// DragStart begins a gesture on the group containing pieceID. Illegal once
// the puzzle is complete or while another drag is in flight.
func (m *Mirror) DragStart(pieceID string) error {
	if m.Complete() {
		return ErrPuzzleComplete
	}
	if m.dragGroup != "" {
		return ErrDragInProgress
	}
	st, ok := m.states[pieceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPiece, pieceID)
	}
	m.dragGroup = st.GroupID
	m.snapSet = false
	return nil
}

// DragMove translates the dragged group by delta, returns the per-piece move
// intents to send, and re-evaluates the snap candidate for the new placement.
func (m *Mirror) DragMove(delta puzzle.Vec3) ([]*protocol.MovePiece, error) {
	if m.dragGroup == "" {
		return nil, ErrNoDragInFlight
	}
	var intents []*protocol.MovePiece
	for _, id := range puzzle.SortedIDs(m.states) {
		st := m.states[id]
		if st.GroupID != m.dragGroup {
			continue
		}
		st.Position = st.Position.Add(delta)
		intents = append(intents, &protocol.MovePiece{PieceID: id, Position: st.Position})
	}
	m.snap, m.snapSet = puzzle.FindSnapCandidate(m.pieces, m.states, m.dragGroup, puzzle.SnapThreshold)
	return intents, nil
}

// DragEnd finishes the gesture. When a snap candidate is set it aligns and
// merges the dragged group locally and returns the single merge intent to
// send; otherwise the pieces stay where they were dropped.
func (m *Mirror) DragEnd() (*protocol.MergeGroup, error) {
	if m.dragGroup == "" {
		return nil, ErrNoDragInFlight
	}
	source := m.dragGroup
	m.dragGroup = ""
	if !m.snapSet {
		return nil, nil
	}
	snap := m.snap
	m.snapSet = false

	align := puzzle.AlignOffset(m.pieces, m.states, snap.MoverPieceID, snap.TargetPieceID)
	puzzle.Merge(m.states, source, snap.TargetGroupID, align)
	m.deriveCompletion()
	return &protocol.MergeGroup{
		SourceGroupID: source,
		TargetGroupID: snap.TargetGroupID,
		AlignOffset:   align,
	}, nil
}
