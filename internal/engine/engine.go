// Package engine decides which sound, if any, a match moment should play.
package engine

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/gyaneshwarpardhi/scoutcue/internal/condition"
	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
	"github.com/gyaneshwarpardhi/scoutcue/internal/matchctx"
	"github.com/gyaneshwarpardhi/scoutcue/internal/metrics"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

// Origin says where a decision's pool came from.
type Origin string

const (
	OriginRule    Origin = "rule"
	OriginDefault Origin = "default"
)

// Decision is the sound chosen for one event.
type Decision struct {
	Origin   Origin          `json:"origin"`
	RuleID   string          `json:"rule_id,omitempty"`
	RuleName string          `json:"rule_name,omitempty"`
	Entry    soundpack.Entry `json:"entry"`
	Volume   float64         `json:"volume"`
}

type compiledRule struct {
	id       string
	name     string
	key      string
	priority int
	logic    soundpack.Logic
	matchers []condition.Matcher
	pool     soundpack.Pool
}

func (r *compiledRule) matches(ctx matchctx.EventContext) bool {
	if len(r.matchers) == 0 {
		return false
	}
	if r.logic == soundpack.LogicAny {
		for _, m := range r.matchers {
			if m(ctx) {
				return true
			}
		}
		return false
	}
	for _, m := range r.matchers {
		if !m(ctx) {
			return false
		}
	}
	return true
}

// Engine evaluates one pack. It is safe for concurrent use.
type Engine struct {
	pack  *soundpack.Pack
	rules []*compiledRule
	sel   *selector
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand replaces the random source used by random and weighted pools.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.sel.rng = r }
}

// New compiles the enabled rules of pack, highest priority first. Rules with
// equal priority keep their pack order.
func New(pack *soundpack.Pack, opts ...Option) (*Engine, error) {
	e := &Engine{
		pack: pack,
		sel:  newSelector(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))),
	}
	for _, opt := range opts {
		opt(e)
	}
	for i, r := range pack.Rules {
		if !r.Enabled {
			continue
		}
		cr := &compiledRule{
			id:       r.ID,
			name:     r.Name,
			key:      fmt.Sprintf("rule:%d:%s", i, r.ID),
			priority: r.Priority,
			logic:    r.Logic,
			pool:     r.Sounds,
		}
		for j, c := range r.Conditions {
			m, err := condition.Compile(c)
			if err != nil {
				return nil, fmt.Errorf("rule %q condition %d: %w", r.ID, j, err)
			}
			cr.matchers = append(cr.matchers, m)
		}
		e.rules = append(e.rules, cr)
	}
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].priority > e.rules[j].priority
	})
	return e, nil
}

// Pack returns the pack the engine was built from.
func (e *Engine) Pack() *soundpack.Pack { return e.pack }

// Decide returns the first matching rule's selection, falling back to the
// default pool for the event kind. A matching rule whose pool has nothing
// enabled is passed over. false means nothing is configured for this event.
func (e *Engine) Decide(ctx matchctx.EventContext) (Decision, bool) {
	master := e.pack.Settings.MasterVolume
	for _, r := range e.rules {
		if !r.matches(ctx) {
			continue
		}
		entry, ok := e.sel.pick(r.key, r.pool)
		if !ok {
			continue
		}
		metrics.Decisions.WithLabelValues(string(OriginRule)).Inc()
		return Decision{
			Origin:   OriginRule,
			RuleID:   r.id,
			RuleName: r.name,
			Entry:    entry,
			Volume:   entry.Volume * master,
		}, true
	}
	if pool, ok := e.pack.Defaults[ctx.Kind]; ok {
		if entry, ok := e.sel.pick(defaultKey(ctx.Kind), pool); ok {
			metrics.Decisions.WithLabelValues(string(OriginDefault)).Inc()
			return Decision{Origin: OriginDefault, Entry: entry, Volume: entry.Volume * master}, true
		}
	}
	metrics.Decisions.WithLabelValues("none").Inc()
	return Decision{}, false
}

func defaultKey(k event.Kind) string { return "default:" + string(k) }
