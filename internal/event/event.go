package event

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind is the closed set of match moments a sound can be attached to.
type Kind string

const (
	KindUnknown    Kind = ""
	KindGameStart  Kind = "gameStart"
	KindGameEnd    Kind = "gameEnd"
	KindFirstBlood Kind = "firstBlood"
	KindKill       Kind = "kill"
	KindMultiKill  Kind = "multiKill"
	KindObjective  Kind = "objective"
	KindAce        Kind = "ace"
)

// Kinds lists every known kind in a stable order.
var Kinds = []Kind{KindGameStart, KindGameEnd, KindFirstBlood, KindKill, KindMultiKill, KindObjective, KindAce}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// upstream EventName -> Kind. Names not listed decode to KindUnknown.
var upstreamKinds = map[string]Kind{
	"GameStart":    KindGameStart,
	"GameEnd":      KindGameEnd,
	"FirstBlood":   KindFirstBlood,
	"ChampionKill": KindKill,
	"Multikill":    KindMultiKill,
	"DragonKill":   KindObjective,
	"BaronKill":    KindObjective,
	"HeraldKill":   KindObjective,
	"TurretKilled": KindObjective,
	"InhibKilled":  KindObjective,
	"Ace":          KindAce,
}

// ErrNoSequence is returned by Decode when an entry carries no EventID.
var ErrNoSequence = errors.New("event has no sequence id")

// GameEvent is one entry of the upstream match event log, parsed at the boundary.
type GameEvent struct {
	Seq        int64    `json:"seq"`
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Time       float64  `json:"time"`
	Killer     string   `json:"killer,omitempty"`
	Victim     string   `json:"victim,omitempty"`
	Assisters  []string `json:"assisters,omitempty"`
	KillStreak int      `json:"killStreak,omitempty"`
	DragonType string   `json:"dragonType,omitempty"`
	Stolen     bool     `json:"stolen,omitempty"`
	Acer       string   `json:"acer,omitempty"`
	AcingTeam  string   `json:"acingTeam,omitempty"`
	Recipient  string   `json:"recipient,omitempty"`
	Result     string   `json:"result,omitempty"`
	Structure  string   `json:"structure,omitempty"`
}

type wireEvent struct {
	EventID      *int64          `json:"EventID"`
	EventName    string          `json:"EventName"`
	EventTime    float64         `json:"EventTime"`
	KillerName   string          `json:"KillerName"`
	VictimName   string          `json:"VictimName"`
	Assisters    []string        `json:"Assisters"`
	KillStreak   int             `json:"KillStreak"`
	DragonType   string          `json:"DragonType"`
	Stolen       json.RawMessage `json:"Stolen"`
	Acer         string          `json:"Acer"`
	AcingTeam    string          `json:"AcingTeam"`
	Recipient    string          `json:"Recipient"`
	Result       string          `json:"Result"`
	TurretKilled string          `json:"TurretKilled"`
	InhibKilled  string          `json:"InhibKilled"`
}

// Decode parses one raw event object. Unknown event names are not an error:
// they decode with KindUnknown so the caller can still account for the sequence id.
func Decode(raw []byte) (GameEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return GameEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if w.EventID == nil {
		return GameEvent{}, ErrNoSequence
	}
	ev := GameEvent{
		Seq:        *w.EventID,
		Name:       w.EventName,
		Kind:       upstreamKinds[w.EventName],
		Time:       w.EventTime,
		Killer:     w.KillerName,
		Victim:     w.VictimName,
		Assisters:  w.Assisters,
		KillStreak: w.KillStreak,
		DragonType: w.DragonType,
		Stolen:     ParseStolen(w.Stolen),
		Acer:       w.Acer,
		AcingTeam:  w.AcingTeam,
		Recipient:  w.Recipient,
		Result:     w.Result,
	}
	switch w.EventName {
	case "TurretKilled":
		ev.Structure = w.TurretKilled
	case "InhibKilled":
		ev.Structure = w.InhibKilled
	}
	return ev, nil
}

// ParseStolen normalises the upstream "stolen" field, which arrives either as a
// JSON bool or as free text ("True", "False"). Anything unparseable is false.
func ParseStolen(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return false
	}
	return v
}

// Participant is one entry of the match roster.
type Participant struct {
	SummonerName   string `json:"summonerName"`
	RiotID         string `json:"riotId,omitempty"`
	RiotIDGameName string `json:"riotIdGameName,omitempty"`
	ChampionName   string `json:"championName"`
	Team           string `json:"team"`
}

// Names returns the non-empty names the participant can appear under in the event log.
func (p Participant) Names() []string {
	out := make([]string, 0, 3)
	for _, n := range []string{p.SummonerName, p.RiotIDGameName, p.RiotID} {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Answers reports whether name exactly equals one of the participant's names.
func (p Participant) Answers(name string) bool {
	if name == "" {
		return false
	}
	for _, n := range p.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// DisplayName is the first known name of the participant.
func (p Participant) DisplayName() string {
	if names := p.Names(); len(names) > 0 {
		return names[0]
	}
	return ""
}
