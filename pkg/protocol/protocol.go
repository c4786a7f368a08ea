// Package protocol defines the message vocabulary exchanged between clients
// and the session server. Every wire message is a JSON object with a "type"
// discriminator plus type-specific fields; Decode maps it back onto exactly
// one of the concrete structs below so a new kind can never be silently
// mis-handled on either side.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/astromechza/voxelpuzzle/pkg/puzzle"
)

// Kind is the wire discriminator.
type Kind string

const (
	// server -> client
	KindSessionList   Kind = "SESSION_LIST"
	KindSessionJoined Kind = "SESSION_JOINED"
	KindPieceMoved    Kind = "PIECE_MOVED"
	KindGroupMerged   Kind = "GROUP_MERGED"
	KindGameCompleted Kind = "GAME_COMPLETED"
	KindError         Kind = "ERROR"

	// client -> server
	KindJoinSession  Kind = "JOIN_SESSION"
	KindMovePiece    Kind = "MOVE_PIECE"
	KindMergeGroup   Kind = "MERGE_GROUP"
	KindLeaveSession Kind = "LEAVE_SESSION"
)

var ErrUnknownType = errors.New("unknown message type")

// Message is implemented by every concrete wire message.
type Message interface {
	Kind() Kind
}

// SessionSummary is one row of a SESSION_LIST broadcast.
type SessionSummary struct {
	SessionID     string    `json:"sessionId"`
	MapID         string    `json:"mapId"`
	Difficulty    string    `json:"difficulty"`
	ActivePlayers int       `json:"activePlayers"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"startTime"`
}

// SessionList is broadcast to every connection whenever session membership
// changes anywhere.
type SessionList struct {
	Sessions []SessionSummary `json:"sessions"`
	Seq      uint64           `json:"seq,omitempty"`
}

func (*SessionList) Kind() Kind { return KindSessionList }

// SessionJoined answers a JOIN_SESSION with the full authoritative snapshot.
// CurrentStates carries the live positions so a rejoining client picks up
// exactly where the session is, not a fresh scatter.
type SessionJoined struct {
	Session       SessionSummary               `json:"session"`
	Config        puzzle.SessionConfig         `json:"config"`
	Pieces        []puzzle.Piece               `json:"pieces"`
	CurrentStates map[string]puzzle.PieceState `json:"currentStates"`
	Seq           uint64                       `json:"seq,omitempty"`
}

func (*SessionJoined) Kind() Kind { return KindSessionJoined }

// PieceMoved is the authoritative delta for a single piece position.
type PieceMoved struct {
	PieceID  string      `json:"pieceId"`
	Position puzzle.Vec3 `json:"position"`
	GroupID  string      `json:"groupId"`
	Seq      uint64      `json:"seq,omitempty"`
}

func (*PieceMoved) Kind() Kind { return KindPieceMoved }

// GroupMerged is the authoritative delta for a group union. Receivers replay
// the same translate-and-relabel locally and re-derive completion themselves.
type GroupMerged struct {
	SourceGroupID string      `json:"sourceGroupId"`
	TargetGroupID string      `json:"targetGroupId"`
	AlignOffset   puzzle.Vec3 `json:"alignOffset"`
	Seq           uint64      `json:"seq,omitempty"`
}

func (*GroupMerged) Kind() Kind { return KindGroupMerged }

// GameCompleted signals the one-way completion transition.
type GameCompleted struct {
	Seq uint64 `json:"seq,omitempty"`
}

func (*GameCompleted) Kind() Kind { return KindGameCompleted }

// ServerError surfaces a failure that is fatal to the request that caused it
// (e.g. session creation when the source rasters are unreadable) without
// touching any other session.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (*ServerError) Kind() Kind { return KindError }

// JoinSession asks for the session keyed by (map, difficulty), creating it if
// none exists.
type JoinSession struct {
	MapID      string `json:"mapId"`
	Difficulty string `json:"difficulty"`
}

func (*JoinSession) Kind() Kind { return KindJoinSession }

// MovePiece is a fire-and-forget position intent. The server applies it
// last-writer-wins.
type MovePiece struct {
	PieceID  string      `json:"pieceId"`
	Position puzzle.Vec3 `json:"position"`
}

func (*MovePiece) Kind() Kind { return KindMovePiece }

// MergeGroup commits a snap at the end of a drag gesture.
type MergeGroup struct {
	SourceGroupID string      `json:"sourceGroupId"`
	TargetGroupID string      `json:"targetGroupId"`
	AlignOffset   puzzle.Vec3 `json:"alignOffset"`
}

func (*MergeGroup) Kind() Kind { return KindMergeGroup }

// LeaveSession removes the connection from its session's broadcast set.
type LeaveSession struct{}

func (*LeaveSession) Kind() Kind { return KindLeaveSession }

// Encode marshals a message with its type tag spliced in as the first field.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.Kind(), err)
	}
	var buf bytes.Buffer
	buf.Grow(len(body) + 16)
	buf.WriteString(`{"type":`)
	tag, _ := json.Marshal(string(msg.Kind()))
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode parses a wire message, dispatching exhaustively on the type tag.
// Malformed input or an unrecognised tag is an error; callers discard such
// messages.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	var msg Message
	switch head.Type {
	case KindSessionList:
		msg = &SessionList{}
	case KindSessionJoined:
		msg = &SessionJoined{}
	case KindPieceMoved:
		msg = &PieceMoved{}
	case KindGroupMerged:
		msg = &GroupMerged{}
	case KindGameCompleted:
		msg = &GameCompleted{}
	case KindError:
		msg = &ServerError{}
	case KindJoinSession:
		msg = &JoinSession{}
	case KindMovePiece:
		msg = &MovePiece{}
	case KindMergeGroup:
		msg = &MergeGroup{}
	case KindLeaveSession:
		msg = &LeaveSession{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", head.Type, err)
	}
	return msg, nil
}

// IsIntent reports whether the message is one a client may send to the
// server. The server discards everything else.
func IsIntent(msg Message) bool {
	switch msg.Kind() {
	case KindJoinSession, KindMovePiece, KindMergeGroup, KindLeaveSession:
		return true
	}
	return false
}
