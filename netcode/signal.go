package netcode

import (
	"github.com/pkopriv2/lockstep/scribe"
)

// Message types.  Lobby messages drive room management; every other type
// is a signal relayed between two devices.
const (
	typeLobby     = "lobby"
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "candidate"
)

// Lobby message categories
const (
	catRoomAssign = "room-assign"
	catPlayer     = "player"
	catSession    = "session"
	catMigration  = "migration"
	catPromotion  = "promotion"
	catFailed     = "failed"
)

// Lobby message statuses
const (
	statusHandshake  = "handshake"
	statusRequest    = "request"
	statusSuccess    = "success"
	statusInvalid    = "invalid"
	statusDenial     = "denial"
	statusMismatch   = "mismatch"
	statusConnect    = "connect"
	statusDisconnect = "disconnect"
	statusStart      = "start"
	statusShutdown   = "shutdown"
	statusAttempt    = "attempt"
	statusComplete   = "complete"
	statusQuery      = "query"
	statusConfirmed  = "confirmed"
	statusResponse   = "response"
)

type header struct {
	id       string
	typ      string
	category string
	status   string
}

// Missing header fields read as empty strings.
func readHeader(msg scribe.Message) (h header) {
	msg.ReadString("id", &h.id)
	msg.ReadString("type", &h.typ)
	msg.ReadString("category", &h.category)
	msg.ReadString("status", &h.status)
	return
}

func newLobbyMessage(id, category, status string, fn func(w scribe.Writer)) scribe.Message {
	return scribe.Build(func(w scribe.Writer) {
		w.WriteString("id", id)
		w.WriteString("type", typeLobby)
		w.WriteString("category", category)
		w.WriteString("status", status)
		if fn != nil {
			fn(w)
		}
	})
}

func newDescriptionSignal(id string, d Description) scribe.Message {
	return scribe.Build(func(w scribe.Writer) {
		w.WriteString("id", id)
		w.WriteString("type", d.Type)
		w.WriteString("description", d.SDP)
	})
}

func newCandidateSignal(id string, c Candidate) scribe.Message {
	return scribe.Build(func(w scribe.Writer) {
		w.WriteString("id", id)
		w.WriteString("type", typeCandidate)
		w.WriteString("candidate", c.Candidate)
		w.WriteString("mid", c.Mid)
	})
}

func readDescription(msg scribe.Message, typ string) (Description, error) {
	var sdp string
	err := msg.ReadString("description", &sdp)
	return Description{typ, sdp}, err
}

func readCandidate(msg scribe.Message) (c Candidate, err error) {
	if err = msg.ReadString("candidate", &c.Candidate); err != nil {
		return
	}
	msg.ReadString("mid", &c.Mid)
	return
}

func readPlayers(msg scribe.Message) []string {
	var players []string
	if err := msg.ReadStrings("players", &players); err != nil {
		return []string{}
	}
	return players
}
