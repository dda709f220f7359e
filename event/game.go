package event

import (
	"fmt"

	"github.com/pkg/errors"
)

// The kinds of game state event.
type GameStateType uint8

const (
	UIDAssign GameStateType = iota + 100
	ClientReady
	GameStart
	GameReset
	GamePause
	GameResume
)

func (t GameStateType) String() string {
	switch t {
	default:
		return fmt.Sprintf("Unknown(%v)", uint8(t))
	case UIDAssign:
		return "UIDAssign"
	case ClientReady:
		return "ClientReady"
	case GameStart:
		return "GameStart"
	case GameReset:
		return "GameReset"
	case GamePause:
		return "GamePause"
	case GameResume:
		return "GameResume"
	}
}

func (t GameStateType) valid() bool {
	return t >= UIDAssign && t <= GameResume
}

// A control event governing the game as a whole.  Only UIDAssign
// carries a payload: the short uid the host assigned to the recipient.
type GameStateEvent struct {
	Type     GameStateType
	ShortUID uint8
}

func NewUIDAssign(uid uint8) *GameStateEvent {
	return &GameStateEvent{Type: UIDAssign, ShortUID: uid}
}

func NewClientReady() *GameStateEvent {
	return &GameStateEvent{Type: ClientReady}
}

func NewGameStart() *GameStateEvent {
	return &GameStateEvent{Type: GameStart}
}

func NewGameReset() *GameStateEvent {
	return &GameStateEvent{Type: GameReset}
}

func NewGamePause() *GameStateEvent {
	return &GameStateEvent{Type: GamePause}
}

func NewGameResume() *GameStateEvent {
	return &GameStateEvent{Type: GameResume}
}

func (e *GameStateEvent) Serialize() []byte {
	if e.Type == UIDAssign {
		return []byte{byte(e.Type), e.ShortUID}
	}
	return []byte{byte(e.Type)}
}

func (e *GameStateEvent) Deserialize(data []byte) error {
	if len(data) < 1 {
		return errors.Wrap(TruncatedError, "Empty game state event")
	}

	typ := GameStateType(data[0])
	if !typ.valid() {
		return errors.Wrapf(UnknownTypeError, "Game state event [%v]", data[0])
	}

	if typ != UIDAssign {
		*e = GameStateEvent{Type: typ}
		return nil
	}

	if len(data) < 2 {
		return errors.Wrap(TruncatedError, "UID assignment missing its uid")
	}

	*e = GameStateEvent{Type: typ, ShortUID: data[1]}
	return nil
}

func (e *GameStateEvent) String() string {
	if e.Type == UIDAssign {
		return fmt.Sprintf("GameState(%v, %v)", e.Type, e.ShortUID)
	}
	return fmt.Sprintf("GameState(%v)", e.Type)
}
