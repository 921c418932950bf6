// Package matchctx turns a decoded game event plus a roster snapshot into the
// flat EventContext the rule engine evaluates.
package matchctx

import (
	"strings"

	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
)

// Side is the actor's team relative to the local participant.
type Side string

const (
	SideUnknown Side = ""
	SideAlly    Side = "ally"
	SideEnemy   Side = "enemy"
)

// MultiKill is the multi-kill tier of a kill streak.
type MultiKill string

const (
	MultiKillNone   MultiKill = ""
	MultiKillDouble MultiKill = "double"
	MultiKillTriple MultiKill = "triple"
	MultiKillQuadra MultiKill = "quadra"
	MultiKillPenta  MultiKill = "penta"
)

// Objective is the neutral objective or structure taken.
type Objective string

const (
	ObjectiveNone      Objective = ""
	ObjectiveTower     Objective = "tower"
	ObjectiveInhibitor Objective = "inhibitor"
	ObjectiveDragon    Objective = "dragon"
	ObjectiveBaron     Objective = "baron"
	ObjectiveHerald    Objective = "herald"
)

// Dragon is the dragon variant of a dragon objective.
type Dragon string

const (
	DragonNone     Dragon = ""
	DragonInfernal Dragon = "infernal"
	DragonMountain Dragon = "mountain"
	DragonOcean    Dragon = "ocean"
	DragonCloud    Dragon = "cloud"
	DragonHextech  Dragon = "hextech"
	DragonChemtech Dragon = "chemtech"
	DragonElder    Dragon = "elder"
)

// Outcome is the result of the match from the local participant's view.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
)

// Party is one named side of an event: the killer, the victim, the acer.
type Party struct {
	Name     string `json:"name,omitempty"`
	Champion string `json:"champion,omitempty"`
	Local    bool   `json:"local,omitempty"`
}

// EventContext is the fully-resolved view of one event. It is built fresh per
// event and never persisted.
type EventContext struct {
	Seq       int64      `json:"seq"`
	Kind      event.Kind `json:"kind"`
	Time      float64    `json:"time"`
	Actor     Party      `json:"actor"`
	Target    Party      `json:"target"`
	Side      Side       `json:"side,omitempty"`
	MultiKill MultiKill  `json:"multikill,omitempty"`
	Objective Objective  `json:"objective,omitempty"`
	Subtype   Dragon     `json:"subtype,omitempty"`
	Stolen    bool       `json:"stolen,omitempty"`
	Outcome   Outcome    `json:"outcome,omitempty"`
}

// Resolve exposes the context to the condition expression language.
// Empty optional fields resolve as absent.
func (c EventContext) Resolve(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	switch strings.ToLower(path[0]) {
	case "seq":
		return float64(c.Seq), true
	case "kind":
		return present(string(c.Kind))
	case "time":
		return c.Time, true
	case "side", "team":
		return present(string(c.Side))
	case "multikill":
		return present(string(c.MultiKill))
	case "objective":
		return present(string(c.Objective))
	case "subtype", "dragon":
		return present(string(c.Subtype))
	case "stolen":
		return c.Stolen, true
	case "outcome", "result":
		return present(string(c.Outcome))
	case "actor", "killer":
		return c.Actor.resolve(path[1:])
	case "target", "victim":
		return c.Target.resolve(path[1:])
	}
	return nil, false
}

func (p Party) resolve(path []string) (any, bool) {
	if len(path) != 1 {
		return nil, false
	}
	switch strings.ToLower(path[0]) {
	case "name":
		return present(p.Name)
	case "champion":
		return present(p.Champion)
	case "local":
		return p.Local, true
	}
	return nil, false
}

func present(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}
