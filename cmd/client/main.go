// A headless demo client: it joins a session and assembles the puzzle by
// performing drag gestures, exercising the same optimistic-prediction and
// reconciliation paths an interactive client would.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/astromechza/voxelpuzzle/pkg/client"
	"github.com/astromechza/voxelpuzzle/pkg/protocol"
	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "127.0.0.1:8080", "the address to connect to")
	mapVar := flag.String("map", "meadow", "the map to join")
	difficultyVar := flag.String("difficulty", "normal", "the difficulty tier to join")
	intervalVar := flag.Duration("interval", 2*time.Second, "time between drag gestures")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addrVar, Path: "/ws"}

	b := &bot{
		mirror:     client.NewMirror(),
		mapID:      *mapVar,
		difficulty: *difficultyVar,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	b.conn = client.NewConn(u.String(), b.join)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.conn.Run(ctx, b.handle); err != nil && ctx.Err() == nil {
			slog.Error("transport stopped", "err", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.dragContinuously(ctx, *intervalVar)
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()

	wg.Wait()
	return nil
}

type bot struct {
	mapID      string
	difficulty string
	conn       *client.Conn
	rng        *rand.Rand

	mu     sync.Mutex
	mirror *client.Mirror
	joined bool
}

// join re-issues the JOIN_SESSION intent after every (re)connect; the server
// answers with the authoritative snapshot either way.
func (b *bot) join() {
	if err := b.conn.Send(&protocol.JoinSession{MapID: b.mapID, Difficulty: b.difficulty}); err != nil {
		slog.Error("failed to send join", "err", err)
	}
}

func (b *bot) handle(msg protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch v := msg.(type) {
	case *protocol.SessionJoined:
		b.mirror.ApplySessionJoined(v)
		b.joined = true
		slog.Info("joined", "session", v.Session.SessionID, "pieces", len(v.Pieces), "groups", b.mirror.GroupCount())
	case *protocol.SessionList:
		slog.Info("session list", "sessions", len(v.Sessions))
	case *protocol.ServerError:
		slog.Error("server error", "code", v.Code, "message", v.Message)
	case *protocol.GameCompleted:
		b.mirror.Apply(v)
		slog.Info("game completed")
	default:
		b.mirror.Apply(v)
	}
}

func (b *bot) dragContinuously(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := b.dragOnce(); err != nil {
				slog.Info("skipping gesture", "reason", err)
			}
		case <-ctx.Done():
			slog.Info("stopping scheduled drags")
			return
		}
	}
}

// dragOnce picks a piece and drags its group towards alignment with a piece
// of a different group, in steps, so snap detection kicks in the same way it
// would for a human drag.
func (b *bot) dragOnce() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.joined {
		return fmt.Errorf("not in a session yet")
	}
	ids := b.mirror.PieceIDs()
	if len(ids) == 0 {
		return fmt.Errorf("no pieces")
	}
	mover := ids[b.rng.Intn(len(ids))]
	target := ""
	for _, id := range ids {
		if b.mirror.GroupOf(id) != b.mirror.GroupOf(mover) {
			target = id
			break
		}
	}
	if target == "" {
		return fmt.Errorf("single group remains")
	}

	if err := b.mirror.DragStart(mover); err != nil {
		return err
	}

	mp, _ := b.mirror.Piece(mover)
	tp, _ := b.mirror.Piece(target)
	moverPos, _ := b.mirror.PositionOf(mover)
	targetPos, _ := b.mirror.PositionOf(target)
	desired := puzzle.Vec3{
		X: targetPos.X + (mp.Centroid.X - tp.Centroid.X),
		Y: moverPos.Y,
		Z: targetPos.Z + (mp.Centroid.Z - tp.Centroid.Z),
	}

	const steps = 5
	step := puzzle.Vec3{
		X: (desired.X - moverPos.X) / steps,
		Z: (desired.Z - moverPos.Z) / steps,
	}
	for i := 0; i < steps; i++ {
		intents, err := b.mirror.DragMove(step)
		if err != nil {
			return err
		}
		for _, intent := range intents {
			if err := b.conn.Send(intent); err != nil {
				slog.Warn("dropping move intent", "err", err)
			}
		}
	}

	merge, err := b.mirror.DragEnd()
	if err != nil {
		return err
	}
	if merge != nil {
		if err := b.conn.Send(merge); err != nil {
			slog.Warn("dropping merge intent", "err", err)
		}
		slog.Info("merged", "source", merge.SourceGroupID, "target", merge.TargetGroupID, "groups", b.mirror.GroupCount())
	}
	return nil
}
