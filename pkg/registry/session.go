package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/astromechza/voxelpuzzle/pkg/protocol"
	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
	"github.com/astromechza/voxelpuzzle/pkg/segment"
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

type sessionKey struct {
	MapID      string
	Difficulty segment.Difficulty
}

// Session is one independent puzzle-assembly instance. The registry's apply
// loop is the only code that touches it after construction.
type Session struct {
	ID         string
	MapID      string
	Difficulty segment.Difficulty
	Config     puzzle.SessionConfig
	StartedAt  time.Time
	Status     string
	Pieces     map[string]puzzle.Piece
	States     map[string]*puzzle.PieceState

	conns     map[*conn]struct{}
	seq       uint64
	seqOn     bool
	lastEmpty time.Time
}

// nextSeq returns the next per-session sequence number, or zero (omitted on
// the wire) when sequence numbering is disabled.
func (s *Session) nextSeq() uint64 {
	if !s.seqOn {
		return 0
	}
	s.seq++
	return s.seq
}

func (s *Session) summary() protocol.SessionSummary {
	return protocol.SessionSummary{
		SessionID:     s.ID,
		MapID:         s.MapID,
		Difficulty:    string(s.Difficulty),
		ActivePlayers: len(s.conns),
		Status:        s.Status,
		StartTime:     s.StartedAt,
	}
}

// stateCopies returns value copies of the live piece states, suitable for
// handing to a joining client.
func (s *Session) stateCopies() map[string]puzzle.PieceState {
	out := make(map[string]puzzle.PieceState, len(s.States))
	for id, st := range s.States {
		out[id] = *st
	}
	return out
}

func (s *Session) sortedPieces() []puzzle.Piece {
	out := make([]puzzle.Piece, 0, len(s.Pieces))
	for _, p := range s.Pieces {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot is the offline-inspectable form of a session, written out on
// shutdown and consumed by cmd/debug.
type Snapshot struct {
	ID         string                       `json:"sessionId"`
	MapID      string                       `json:"mapId"`
	Difficulty string                       `json:"difficulty"`
	Config     puzzle.SessionConfig         `json:"config"`
	StartedAt  time.Time                    `json:"startedAt"`
	Status     string                       `json:"status"`
	Pieces     []puzzle.Piece               `json:"pieces"`
	States     map[string]puzzle.PieceState `json:"states"`
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:         s.ID,
		MapID:      s.MapID,
		Difficulty: string(s.Difficulty),
		Config:     s.Config,
		StartedAt:  s.StartedAt,
		Status:     s.Status,
		Pieces:     s.sortedPieces(),
		States:     s.stateCopies(),
	}
}

// WriteFile dumps the snapshot as indented JSON into dir and returns the
// written path.
func (s Snapshot) WriteFile(dir string) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot %s: %w", s.ID, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("session-%s.json", s.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", s.ID, err)
	}
	return path, nil
}

// ReadSnapshot loads a snapshot previously written by WriteFile.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return snap, nil
}

// PieceMap and StateMap rebuild the lookup forms the live session uses.
func (s Snapshot) PieceMap() map[string]puzzle.Piece {
	out := make(map[string]puzzle.Piece, len(s.Pieces))
	for _, p := range s.Pieces {
		out[p.ID] = p
	}
	return out
}

func (s Snapshot) StateMap() map[string]*puzzle.PieceState {
	out := make(map[string]*puzzle.PieceState, len(s.States))
	for id, st := range s.States {
		copied := st
		out[id] = &copied
	}
	return out
}
