// Package registry holds the authoritative session store. All mutation of
// session state flows through a single serialized apply loop, so the state
// graph needs no locks: two merges over overlapping groups can never
// interleave.
package registry

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/astromechza/voxelpuzzle/pkg/protocol"
	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
	"github.com/astromechza/voxelpuzzle/pkg/segment"
)

// MapSource resolves a map id to its decoded source rasters. The sqlite
// catalog implements this; tests substitute generated images.
type MapSource interface {
	Load(ctx context.Context, mapID string) (colorImg, depthImg image.Image, err error)
}

type Options struct {
	// SessionTTL evicts sessions that have had zero connected clients for
	// longer than this. Zero keeps sessions forever (the default).
	SessionTTL time.Duration
	// SequenceNumbers stamps a per-session monotone seq on every
	// authoritative delta so clients can detect gaps. Off by default to
	// preserve plain at-most-once delivery.
	SequenceNumbers bool
	// ScatterRadius bounds the initial scattered spawn positions.
	ScatterRadius float64
	// InboxSize is the apply-loop channel depth.
	InboxSize int
}

func (o *Options) applyDefaults() {
	if o.ScatterRadius <= 0 {
		o.ScatterRadius = 60
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 256
	}
}

type cmdKind int

const (
	cmdAttach cmdKind = iota
	cmdDetach
	cmdIntent
)

type command struct {
	kind cmdKind
	c    *conn
	msg  protocol.Message
}

// Registry owns every session in the process. Construct one at startup and
// hand it to the HTTP layer; there is no package-level state.
type Registry struct {
	source MapSource
	opts   Options
	inbox  chan command
	rng    *rand.Rand

	conns map[*conn]*Session
	byKey map[sessionKey]*Session
}

func New(source MapSource, opts Options) *Registry {
	opts.applyDefaults()
	return &Registry{
		source: source,
		opts:   opts,
		inbox:  make(chan command, opts.InboxSize),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		conns:  make(map[*conn]*Session),
		byKey:  make(map[sessionKey]*Session),
	}
}

// Run consumes the inbox until the context is cancelled. It is the only
// goroutine that reads or writes session state.
func (r *Registry) Run(ctx context.Context) {
	var evict <-chan time.Time
	if r.opts.SessionTTL > 0 {
		t := time.NewTicker(r.opts.SessionTTL / 2)
		defer t.Stop()
		evict = t.C
	}
	for {
		select {
		case cmd := <-r.inbox:
			r.apply(ctx, cmd)
		case <-evict:
			r.evictIdle(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) apply(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdAttach:
		r.attach(cmd.c)
	case cmdDetach:
		r.detach(cmd.c)
	case cmdIntent:
		r.handleIntent(ctx, cmd.c, cmd.msg)
	}
}

func (r *Registry) attach(c *conn) {
	r.conns[c] = nil
	r.sendTo(c, &protocol.SessionList{Sessions: r.summaries()})
}

func (r *Registry) detach(c *conn) {
	if _, ok := r.conns[c]; !ok {
		return
	}
	left := r.leaveSession(c)
	delete(r.conns, c)
	close(c.send)
	if left {
		r.broadcastSessionList()
	}
}

func (r *Registry) handleIntent(ctx context.Context, c *conn, msg protocol.Message) {
	if _, ok := r.conns[c]; !ok {
		return
	}
	switch m := msg.(type) {
	case *protocol.JoinSession:
		r.handleJoin(ctx, c, m)
	case *protocol.MovePiece:
		r.handleMove(c, m)
	case *protocol.MergeGroup:
		r.handleMerge(c, m)
	case *protocol.LeaveSession:
		if r.leaveSession(c) {
			r.broadcastSessionList()
		}
	default:
		slog.Warn("discarding unexpected intent", "type", msg.Kind())
	}
}

func (r *Registry) handleJoin(ctx context.Context, c *conn, m *protocol.JoinSession) {
	difficulty, err := segment.ParseDifficulty(m.Difficulty)
	if err != nil {
		r.sendTo(c, &protocol.ServerError{Code: "BAD_DIFFICULTY", Message: err.Error()})
		return
	}
	key := sessionKey{MapID: m.MapID, Difficulty: difficulty}
	sess, ok := r.byKey[key]
	if !ok {
		sess, err = r.createSession(ctx, m.MapID, difficulty)
		if err != nil {
			slog.Error("failed to create session", "map", m.MapID, "difficulty", difficulty, "err", err)
			r.sendTo(c, &protocol.ServerError{Code: "SESSION_CREATE_FAILED", Message: err.Error()})
			return
		}
		r.byKey[key] = sess
		slog.Info("created session", "session", sess.ID, "map", sess.MapID, "difficulty", sess.Difficulty, "pieces", len(sess.Pieces))
	}

	if current := r.conns[c]; current != nil && current != sess {
		r.leaveSession(c)
	}
	sess.conns[c] = struct{}{}
	sess.lastEmpty = time.Time{}
	r.conns[c] = sess

	r.sendTo(c, &protocol.SessionJoined{
		Session:       sess.summary(),
		Config:        sess.Config,
		Pieces:        sess.sortedPieces(),
		CurrentStates: sess.stateCopies(),
		Seq:           sess.nextSeq(),
	})
	r.broadcastSessionList()
}

func (r *Registry) createSession(ctx context.Context, mapID string, difficulty segment.Difficulty) (*Session, error) {
	cfg := puzzle.SessionConfig{
		ScatterSeed:  r.rng.Int63(),
		RandomFactor: r.rng.Float64(),
	}
	colorImg, depthImg, err := r.source.Load(ctx, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to load map %s: %w", mapID, err)
	}
	res, err := segment.Segment(colorImg, depthImg, difficulty, cfg.RandomFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to segment map %s: %w", mapID, err)
	}
	pieces := segment.BuildPieces(res)

	ids := make([]string, 0, len(pieces))
	pieceMap := make(map[string]puzzle.Piece, len(pieces))
	for _, p := range pieces {
		ids = append(ids, p.ID)
		pieceMap[p.ID] = p
	}
	spawn := puzzle.Scatter(cfg.ScatterSeed, ids, r.opts.ScatterRadius)

	states := make(map[string]*puzzle.PieceState, len(pieces))
	for _, id := range ids {
		states[id] = &puzzle.PieceState{ID: id, Position: spawn[id], GroupID: id}
	}

	return &Session{
		ID:         uuid.NewString(),
		MapID:      mapID,
		Difficulty: difficulty,
		Config:     cfg,
		StartedAt:  time.Now().UTC(),
		Status:     StatusActive,
		Pieces:     pieceMap,
		States:     states,
		conns:      make(map[*conn]struct{}),
		seqOn:      r.opts.SequenceNumbers,
	}, nil
}

func (r *Registry) handleMove(c *conn, m *protocol.MovePiece) {
	sess := r.conns[c]
	if sess == nil {
		slog.Warn("discarding move from connection outside any session", "piece", m.PieceID)
		return
	}
	st, ok := sess.States[m.PieceID]
	if !ok {
		// Unknown piece ids are tolerated: a default state is created
		// lazily rather than rejecting the intent.
		st = &puzzle.PieceState{ID: m.PieceID, GroupID: m.PieceID}
		sess.States[m.PieceID] = st
	}
	st.Position = m.Position
	r.broadcastToSession(sess, c, &protocol.PieceMoved{
		PieceID:  st.ID,
		Position: st.Position,
		GroupID:  st.GroupID,
		Seq:      sess.nextSeq(),
	})
}

func (r *Registry) handleMerge(c *conn, m *protocol.MergeGroup) {
	sess := r.conns[c]
	if sess == nil {
		slog.Warn("discarding merge from connection outside any session")
		return
	}
	// If a concurrent merge already relabeled the source group, this
	// reassigns nothing; the delta is still rebroadcast so every mirror
	// replays the identical (possibly empty) transform in the same order.
	moved := puzzle.Merge(sess.States, m.SourceGroupID, m.TargetGroupID, m.AlignOffset)
	if moved == 0 {
		slog.Info("merge degraded to no-op", "session", sess.ID, "source", m.SourceGroupID, "target", m.TargetGroupID)
	}
	r.broadcastToSession(sess, c, &protocol.GroupMerged{
		SourceGroupID: m.SourceGroupID,
		TargetGroupID: m.TargetGroupID,
		AlignOffset:   m.AlignOffset,
		Seq:           sess.nextSeq(),
	})
	// Re-derive completion after every merge, not just the first completing
	// one: a raced merge arriving after completion still translates pieces
	// and must be re-snapped to the floor, exactly as mirrors do.
	if puzzle.IsComplete(sess.States) {
		puzzle.CompleteAll(sess.States)
		if sess.Status != StatusCompleted {
			sess.Status = StatusCompleted
			slog.Info("session completed", "session", sess.ID, "map", sess.MapID)
			r.broadcastToSession(sess, c, &protocol.GameCompleted{Seq: sess.nextSeq()})
			r.broadcastSessionList()
		}
	}
}

// leaveSession removes the connection from its session's broadcast set,
// keeping the session itself alive for rejoiners. Reports whether membership
// actually changed.
func (r *Registry) leaveSession(c *conn) bool {
	sess := r.conns[c]
	if sess == nil {
		return false
	}
	delete(sess.conns, c)
	r.conns[c] = nil
	if len(sess.conns) == 0 {
		sess.lastEmpty = time.Now()
	}
	return true
}

func (r *Registry) evictIdle(now time.Time) {
	evicted := false
	for key, sess := range r.byKey {
		if len(sess.conns) == 0 && !sess.lastEmpty.IsZero() && now.Sub(sess.lastEmpty) > r.opts.SessionTTL {
			delete(r.byKey, key)
			evicted = true
			slog.Info("evicted idle session", "session", sess.ID, "map", sess.MapID)
		}
	}
	if evicted {
		r.broadcastSessionList()
	}
}

func (r *Registry) summaries() []protocol.SessionSummary {
	out := make([]protocol.SessionSummary, 0, len(r.byKey))
	for _, sess := range r.byKey {
		out = append(out, sess.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (r *Registry) broadcastSessionList() {
	msg := &protocol.SessionList{Sessions: r.summaries()}
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("failed to encode session list", "err", err)
		return
	}
	for c := range r.conns {
		c.trySend(data)
	}
}

// broadcastToSession delivers a delta to every connection in the session
// except the originator, which already holds the state optimistically.
func (r *Registry) broadcastToSession(sess *Session, except *conn, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("failed to encode broadcast", "type", msg.Kind(), "err", err)
		return
	}
	for c := range sess.conns {
		if c == except {
			continue
		}
		c.trySend(data)
	}
}

func (r *Registry) sendTo(c *conn, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("failed to encode message", "type", msg.Kind(), "err", err)
		return
	}
	c.trySend(data)
}

// Snapshots captures every live session for offline inspection. Only call it
// after Run has returned; it reads session state without synchronization.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(r.byKey))
	for _, sess := range r.byKey {
		out = append(out, sess.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
