// Package condition compiles sound rule conditions into matchers evaluated
// against an event context.
package condition

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gyaneshwarpardhi/scoutcue/internal/matchctx"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

// Matcher reports whether a context satisfies a compiled condition. It is
// total and side-effect free.
type Matcher func(matchctx.EventContext) bool

// Compile turns one pack condition into a Matcher. Expressions are parsed here,
// so evaluation never parses.
func Compile(c soundpack.Condition) (Matcher, error) {
	switch c.Type {
	case soundpack.CondPlayer:
		return playerMatcher(c)
	case soundpack.CondChampion:
		return championMatcher(c)
	case soundpack.CondMultikill:
		want := slices.Clone(c.KillTypes)
		return func(ctx matchctx.EventContext) bool {
			return ctx.MultiKill != matchctx.MultiKillNone && slices.Contains(want, ctx.MultiKill)
		}, nil
	case soundpack.CondObjective:
		want := slices.Clone(c.Objectives)
		return func(ctx matchctx.EventContext) bool {
			return ctx.Objective != matchctx.ObjectiveNone && slices.Contains(want, ctx.Objective)
		}, nil
	case soundpack.CondDragonType:
		want := slices.Clone(c.Dragons)
		return func(ctx matchctx.EventContext) bool {
			return ctx.Subtype != matchctx.DragonNone && slices.Contains(want, ctx.Subtype)
		}, nil
	case soundpack.CondStolen:
		want := c.IsStolen
		return func(ctx matchctx.EventContext) bool { return ctx.Stolen == want }, nil
	case soundpack.CondTeam:
		if c.Team != matchctx.SideAlly && c.Team != matchctx.SideEnemy {
			return nil, fmt.Errorf("team condition: unknown team %q", c.Team)
		}
		want := c.Team
		// An unresolved side matches neither ally nor enemy.
		return func(ctx matchctx.EventContext) bool { return ctx.Side == want }, nil
	case soundpack.CondGameResult:
		if c.Result != matchctx.OutcomeVictory && c.Result != matchctx.OutcomeDefeat {
			return nil, fmt.Errorf("gameResult condition: unknown result %q", c.Result)
		}
		want := c.Result
		return func(ctx matchctx.EventContext) bool { return ctx.Outcome == want }, nil
	case soundpack.CondExpression:
		expr, err := Parse(c.Expression)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %w", c.Expression, err)
		}
		return func(ctx matchctx.EventContext) bool { return Evaluate(expr, ctx) }, nil
	}
	return nil, fmt.Errorf("unknown condition type %q", c.Type)
}

func playerMatcher(c soundpack.Condition) (Matcher, error) {
	pick, err := partyOf(c.Field, soundpack.FieldKiller, soundpack.FieldVictim)
	if err != nil {
		return nil, fmt.Errorf("player condition: %w", err)
	}
	names := slices.Clone(c.Players)
	includeLocal := c.IncludeLocalPlayer
	return func(ctx matchctx.EventContext) bool {
		p := pick(ctx)
		if includeLocal && p.Local {
			return true
		}
		return containsFold(names, p.Name)
	}, nil
}

func championMatcher(c soundpack.Condition) (Matcher, error) {
	pick, err := partyOf(c.Field, soundpack.FieldKillerChampion, soundpack.FieldVictimChampion)
	if err != nil {
		return nil, fmt.Errorf("champion condition: %w", err)
	}
	champs := slices.Clone(c.Champions)
	return func(ctx matchctx.EventContext) bool {
		return containsFold(champs, pick(ctx).Champion)
	}, nil
}

func partyOf(field, actor, target string) (func(matchctx.EventContext) matchctx.Party, error) {
	switch field {
	case actor:
		return func(ctx matchctx.EventContext) matchctx.Party { return ctx.Actor }, nil
	case target:
		return func(ctx matchctx.EventContext) matchctx.Party { return ctx.Target }, nil
	}
	return nil, fmt.Errorf("unknown field %q (want %s or %s)", field, actor, target)
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
