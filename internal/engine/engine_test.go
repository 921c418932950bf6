package engine

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
	"github.com/gyaneshwarpardhi/scoutcue/internal/matchctx"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

func entry(id string) soundpack.Entry {
	return soundpack.Entry{ID: id, Source: soundpack.FileSource(id + ".mp3"), Volume: 1, Enabled: true}
}

func pool(mode soundpack.Selection, entries ...soundpack.Entry) soundpack.Pool {
	return soundpack.Pool{Sounds: entries, Selection: mode}
}

var (
	isKill  = soundpack.Condition{Type: soundpack.CondExpression, Expression: `kind == "kill"`}
	isAlly  = soundpack.Condition{Type: soundpack.CondTeam, Team: matchctx.SideAlly}
	isEnemy = soundpack.Condition{Type: soundpack.CondTeam, Team: matchctx.SideEnemy}
	isPenta = soundpack.Condition{Type: soundpack.CondMultikill, KillTypes: []matchctx.MultiKill{matchctx.MultiKillPenta}}
)

func rule(id string, priority int, conds []soundpack.Condition, p soundpack.Pool) soundpack.Rule {
	return soundpack.Rule{ID: id, Name: id, Enabled: true, Priority: priority, Conditions: conds, Logic: soundpack.LogicAll, Sounds: p}
}

func newPack(rules []soundpack.Rule, defaults map[event.Kind]soundpack.Pool) *soundpack.Pack {
	p := soundpack.Default()
	p.Rules = rules
	if defaults != nil {
		p.Defaults = defaults
	}
	return p
}

func mustEngine(t *testing.T, p *soundpack.Pack) *Engine {
	t.Helper()
	e, err := New(p, WithRand(rand.New(rand.NewPCG(7, 11))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

var allyKill = matchctx.EventContext{Seq: 1, Kind: event.KindKill, Actor: matchctx.Party{Name: "A"}, Target: matchctx.Party{Name: "B"}, Side: matchctx.SideAlly}

func TestDecide_Priority(t *testing.T) {
	p := newPack([]soundpack.Rule{
		rule("low", 10, []soundpack.Condition{isKill}, pool("", entry("low"))),
		rule("high", 90, []soundpack.Condition{isKill}, pool("", entry("high"))),
	}, nil)
	d, ok := mustEngine(t, p).Decide(allyKill)
	if !ok || d.RuleID != "high" || d.Entry.ID != "high" || d.Origin != OriginRule {
		t.Fatalf("Decide = %+v, %v; want rule high", d, ok)
	}
}

func TestDecide_TiesKeepPackOrder(t *testing.T) {
	p := newPack([]soundpack.Rule{
		rule("first", 50, []soundpack.Condition{isKill}, pool("", entry("first"))),
		rule("second", 50, []soundpack.Condition{isKill}, pool("", entry("second"))),
	}, nil)
	e := mustEngine(t, p)
	for i := 0; i < 20; i++ {
		if d, _ := e.Decide(allyKill); d.RuleID != "first" {
			t.Fatalf("tie resolved to %q", d.RuleID)
		}
	}
}

func TestDecide_Fallback(t *testing.T) {
	defaults := map[event.Kind]soundpack.Pool{event.KindKill: pool("", entry("default-kill"))}

	t.Run("no rules uses default", func(t *testing.T) {
		d, ok := mustEngine(t, newPack(nil, defaults)).Decide(allyKill)
		if !ok || d.Origin != OriginDefault || d.Entry.ID != "default-kill" {
			t.Fatalf("Decide = %+v, %v", d, ok)
		}
	})
	t.Run("disabled rule is ignored", func(t *testing.T) {
		r := rule("off", 100, []soundpack.Condition{isKill}, pool("", entry("off")))
		r.Enabled = false
		d, ok := mustEngine(t, newPack([]soundpack.Rule{r}, defaults)).Decide(allyKill)
		if !ok || d.Origin != OriginDefault {
			t.Fatalf("Decide = %+v, %v", d, ok)
		}
	})
	t.Run("no default for kind", func(t *testing.T) {
		ctx := matchctx.EventContext{Kind: event.KindAce, Side: matchctx.SideEnemy}
		if d, ok := mustEngine(t, newPack(nil, defaults)).Decide(ctx); ok {
			t.Fatalf("Decide = %+v, want nothing", d)
		}
	})
	t.Run("all-disabled default pool", func(t *testing.T) {
		off := entry("off")
		off.Enabled = false
		d, ok := mustEngine(t, newPack(nil, map[event.Kind]soundpack.Pool{event.KindKill: pool("", off)})).Decide(allyKill)
		if ok {
			t.Fatalf("Decide = %+v, want nothing", d)
		}
	})
	t.Run("matching rule with empty pool falls through", func(t *testing.T) {
		rules := []soundpack.Rule{
			rule("empty", 90, []soundpack.Condition{isKill}, pool("")),
			rule("next", 10, []soundpack.Condition{isKill}, pool("", entry("next"))),
		}
		d, ok := mustEngine(t, newPack(rules, defaults)).Decide(allyKill)
		if !ok || d.RuleID != "next" {
			t.Fatalf("Decide = %+v, %v", d, ok)
		}
	})
}

func TestDecide_ZeroConditionRuleNeverMatches(t *testing.T) {
	p := newPack([]soundpack.Rule{rule("catchall", 100, nil, pool("", entry("x")))}, nil)
	if d, ok := mustEngine(t, p).Decide(allyKill); ok {
		t.Fatalf("Decide = %+v, want nothing", d)
	}
}

func TestDecide_AllAny(t *testing.T) {
	conds := []soundpack.Condition{isKill, isEnemy}

	all := rule("r", 50, conds, pool("", entry("x")))
	if _, ok := mustEngine(t, newPack([]soundpack.Rule{all}, nil)).Decide(allyKill); ok {
		t.Error("All with one false condition matched")
	}

	anyRule := all
	anyRule.Logic = soundpack.LogicAny
	if _, ok := mustEngine(t, newPack([]soundpack.Rule{anyRule}, nil)).Decide(allyKill); !ok {
		t.Error("Any with one true condition did not match")
	}
}

func TestDecide_EffectiveVolume(t *testing.T) {
	e := entry("v")
	e.Volume = 0.8
	p := newPack([]soundpack.Rule{rule("r", 50, []soundpack.Condition{isAlly}, pool("", e))}, nil)
	p.Settings.MasterVolume = 0.5
	d, ok := mustEngine(t, p).Decide(allyKill)
	if !ok || math.Abs(d.Volume-0.4) > 1e-9 {
		t.Fatalf("Volume = %v, want 0.4", d.Volume)
	}
}

func TestDecide_Sequential(t *testing.T) {
	off := entry("b")
	off.Enabled = false
	p := newPack([]soundpack.Rule{
		rule("seq", 50, []soundpack.Condition{isKill}, pool(soundpack.SelectSequential, entry("a"), off, entry("c"), entry("d"))),
	}, map[event.Kind]soundpack.Pool{
		event.KindAce: pool(soundpack.SelectSequential, entry("x"), entry("y")),
	})
	e := mustEngine(t, p)
	var got []string
	for i := 0; i < 5; i++ {
		d, _ := e.Decide(allyKill)
		got = append(got, d.Entry.ID)
	}
	want := []string{"a", "c", "d", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", got, want)
		}
	}
	// default pools rotate independently of rule pools
	ace := matchctx.EventContext{Kind: event.KindAce}
	if d, _ := e.Decide(ace); d.Entry.ID != "x" {
		t.Fatalf("first ace = %q, want x", d.Entry.ID)
	}
	if d, _ := e.Decide(ace); d.Entry.ID != "y" {
		t.Fatalf("second ace = %q, want y", d.Entry.ID)
	}
}

func TestDecide_WeightedDistribution(t *testing.T) {
	one, three := 1.0, 3.0
	minority, majority := entry("minority"), entry("majority")
	minority.Weight = &one
	majority.Weight = &three
	p := newPack([]soundpack.Rule{
		rule("w", 50, []soundpack.Condition{isKill}, pool(soundpack.SelectWeighted, minority, majority)),
	}, nil)
	e := mustEngine(t, p)

	const n = 20000
	hits := 0
	for i := 0; i < n; i++ {
		if d, _ := e.Decide(allyKill); d.Entry.ID == "minority" {
			hits++
		}
	}
	if ratio := float64(hits) / n; ratio < 0.20 || ratio > 0.30 {
		t.Fatalf("minority ratio = %.3f, want ~0.25", ratio)
	}
}

func TestDecide_WeightedNonPositiveTotal(t *testing.T) {
	zero := 0.0
	a, b := entry("a"), entry("b")
	a.Weight, b.Weight = &zero, &zero
	p := newPack([]soundpack.Rule{rule("w", 50, []soundpack.Condition{isKill}, pool(soundpack.SelectWeighted, a, b))}, nil)
	e := mustEngine(t, p)
	for i := 0; i < 10; i++ {
		if d, _ := e.Decide(allyKill); d.Entry.ID != "a" {
			t.Fatalf("picked %q, want first enabled", d.Entry.ID)
		}
	}
}

func TestDecide_RandomCoversPool(t *testing.T) {
	p := newPack([]soundpack.Rule{rule("r", 50, []soundpack.Condition{isKill}, pool(soundpack.SelectRandom, entry("a"), entry("b"), entry("c")))}, nil)
	e := mustEngine(t, p)
	seen := map[string]bool{}
	for i := 0; i < 300; i++ {
		d, _ := e.Decide(allyKill)
		seen[d.Entry.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("random selection only produced %v", seen)
	}
}

// Kill event A->B, watermark empty: the penta rule must not match and the
// kill default is used.
func TestDecide_PentaRuleSkipsPlainKill(t *testing.T) {
	p := newPack(
		[]soundpack.Rule{rule("penta", 100, []soundpack.Condition{isPenta}, pool("", entry("penta")))},
		map[event.Kind]soundpack.Pool{event.KindKill: pool("", entry("kill"))},
	)
	d, ok := mustEngine(t, p).Decide(allyKill)
	if !ok || d.Origin != OriginDefault || d.Entry.ID != "kill" {
		t.Fatalf("Decide = %+v, %v", d, ok)
	}
}

func TestNew_RejectsBadCondition(t *testing.T) {
	p := newPack([]soundpack.Rule{rule("bad", 50, []soundpack.Condition{{Type: soundpack.CondExpression, Expression: "kind =="}}, pool("", entry("x")))}, nil)
	if _, err := New(p); err == nil {
		t.Fatal("expected compile error")
	}
}
