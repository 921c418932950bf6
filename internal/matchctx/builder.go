package matchctx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
)

// ErrMalformedEvent marks an event that is missing the fields its kind needs.
// Such events are skipped, never fatal to the batch.
var ErrMalformedEvent = errors.New("malformed event")

// Builder resolves events against one roster snapshot. The local participant
// may be unknown, in which case nothing is ever considered local.
type Builder struct {
	local  *event.Participant
	roster []event.Participant
}

// NewBuilder snapshots the roster. local may be nil.
func NewBuilder(local *event.Participant, roster []event.Participant) *Builder {
	b := &Builder{roster: append([]event.Participant(nil), roster...)}
	if local != nil {
		l := *local
		// The active-player lookup does not always carry the team; the roster does.
		if l.Team == "" || l.ChampionName == "" {
			if p, ok := b.lookup(l.Names()...); ok {
				if l.Team == "" {
					l.Team = p.Team
				}
				if l.ChampionName == "" {
					l.ChampionName = p.ChampionName
				}
			}
		}
		b.local = &l
	}
	return b
}

// IsLocal is a case-respecting exact comparison. An unknown local name never matches.
func IsLocal(name, localName string) bool {
	return localName != "" && name == localName
}

// Build maps ev to an EventContext.
func (b *Builder) Build(ev event.GameEvent) (EventContext, error) {
	ctx := EventContext{Seq: ev.Seq, Kind: ev.Kind, Time: ev.Time}

	switch ev.Kind {
	case event.KindGameStart:
	case event.KindGameEnd:
		ctx.Outcome = ParseOutcome(ev.Result)
	case event.KindKill:
		if ev.Killer == "" || ev.Victim == "" {
			return EventContext{}, malformed(ev, "kill needs killer and victim")
		}
		ctx.Actor = b.party(ev.Killer)
		ctx.Target = b.party(ev.Victim)
		ctx.Side = b.sideOf(ev.Killer)
	case event.KindFirstBlood:
		actor := ev.Recipient
		if actor == "" {
			actor = ev.Killer
		}
		if actor == "" {
			return EventContext{}, malformed(ev, "first blood needs a recipient")
		}
		ctx.Actor = b.party(actor)
		ctx.Side = b.sideOf(actor)
	case event.KindMultiKill:
		tier := ParseMultiKill(ev.KillStreak)
		if ev.Killer == "" || tier == MultiKillNone {
			return EventContext{}, malformed(ev, fmt.Sprintf("multikill needs killer and streak >= 2 (got %q, %d)", ev.Killer, ev.KillStreak))
		}
		ctx.Actor = b.party(ev.Killer)
		ctx.Side = b.sideOf(ev.Killer)
		ctx.MultiKill = tier
	case event.KindObjective:
		obj := ParseObjective(ev.Name)
		if obj == ObjectiveNone {
			return EventContext{}, malformed(ev, "unrecognised objective "+ev.Name)
		}
		ctx.Objective = obj
		if obj == ObjectiveDragon {
			ctx.Subtype = ParseDragon(ev.DragonType)
		}
		ctx.Stolen = ev.Stolen
		if ev.Killer != "" {
			ctx.Actor = b.party(ev.Killer)
			ctx.Side = b.sideOf(ev.Killer)
		}
		if ctx.Side == SideUnknown && ev.Structure != "" {
			ctx.Side = b.sideOfTeam(destroyerOf(ev.Structure))
		}
	case event.KindAce:
		if ev.AcingTeam == "" {
			return EventContext{}, malformed(ev, "ace needs the acing team")
		}
		if ev.Acer != "" {
			ctx.Actor = b.party(ev.Acer)
		}
		ctx.Side = b.sideOfTeam(ev.AcingTeam)
	default:
		return EventContext{}, malformed(ev, fmt.Sprintf("unsupported event %q", ev.Name))
	}
	return ctx, nil
}

func malformed(ev event.GameEvent, reason string) error {
	return fmt.Errorf("%w: seq %d: %s", ErrMalformedEvent, ev.Seq, reason)
}

func (b *Builder) party(name string) Party {
	p := Party{Name: name, Local: b.isLocal(name)}
	if r, ok := b.lookup(name); ok {
		p.Champion = r.ChampionName
	}
	return p
}

func (b *Builder) isLocal(name string) bool {
	if b.local == nil {
		return false
	}
	for _, n := range b.local.Names() {
		if IsLocal(name, n) {
			return true
		}
	}
	return false
}

func (b *Builder) lookup(names ...string) (event.Participant, bool) {
	for _, name := range names {
		for _, p := range b.roster {
			if p.Answers(name) {
				return p, true
			}
		}
	}
	return event.Participant{}, false
}

func (b *Builder) sideOf(name string) Side {
	if b.isLocal(name) && b.local.Team == "" {
		return SideAlly
	}
	p, ok := b.lookup(name)
	if !ok {
		return SideUnknown
	}
	return b.sideOfTeam(p.Team)
}

func (b *Builder) sideOfTeam(team string) Side {
	if b.local == nil || b.local.Team == "" || team == "" {
		return SideUnknown
	}
	if strings.EqualFold(team, b.local.Team) {
		return SideAlly
	}
	return SideEnemy
}

// destroyerOf reads the owning team out of a structure id such as
// "Turret_T2_L_03_A" and returns the team that destroyed it.
func destroyerOf(structure string) string {
	switch {
	case strings.Contains(structure, "_T1_"):
		return "CHAOS"
	case strings.Contains(structure, "_T2_"):
		return "ORDER"
	}
	return ""
}

// ParseMultiKill maps a kill streak count to its tier; counts above five stay penta.
func ParseMultiKill(streak int) MultiKill {
	switch {
	case streak < 2:
		return MultiKillNone
	case streak == 2:
		return MultiKillDouble
	case streak == 3:
		return MultiKillTriple
	case streak == 4:
		return MultiKillQuadra
	default:
		return MultiKillPenta
	}
}

// ParseObjective matches an upstream event or objective name by substring.
func ParseObjective(name string) Objective {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "dragon"):
		return ObjectiveDragon
	case strings.Contains(n, "baron"):
		return ObjectiveBaron
	case strings.Contains(n, "herald"):
		return ObjectiveHerald
	case strings.Contains(n, "turret"), strings.Contains(n, "tower"):
		return ObjectiveTower
	case strings.Contains(n, "inhib"):
		return ObjectiveInhibitor
	}
	return ObjectiveNone
}

// ParseDragon accepts both the in-game element names and the variant names.
func ParseDragon(s string) Dragon {
	n := strings.ToLower(s)
	switch {
	case strings.Contains(n, "elder"):
		return DragonElder
	case strings.Contains(n, "fire"), strings.Contains(n, "infernal"):
		return DragonInfernal
	case strings.Contains(n, "earth"), strings.Contains(n, "mountain"):
		return DragonMountain
	case strings.Contains(n, "water"), strings.Contains(n, "ocean"):
		return DragonOcean
	case strings.Contains(n, "air"), strings.Contains(n, "cloud"):
		return DragonCloud
	case strings.Contains(n, "hextech"):
		return DragonHextech
	case strings.Contains(n, "chemtech"):
		return DragonChemtech
	}
	return DragonNone
}

// ParseOutcome maps the end-of-match result string.
func ParseOutcome(s string) Outcome {
	n := strings.ToLower(s)
	switch {
	case strings.Contains(n, "win"), strings.Contains(n, "victory"):
		return OutcomeVictory
	case strings.Contains(n, "lose"), strings.Contains(n, "loss"), strings.Contains(n, "defeat"):
		return OutcomeDefeat
	}
	return OutcomeNone
}
