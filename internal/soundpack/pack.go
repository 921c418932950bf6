// Package soundpack holds the sound pack data model: sources, pools, rules and
// their conditions, as stored in a pack file.
package soundpack

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goccy/go-json"

	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
	"github.com/gyaneshwarpardhi/scoutcue/internal/matchctx"
)

const (
	DefaultPriority = 50
	DefaultVersion  = "1.0.0"
)

// SourceType tags a Source.
type SourceType string

const (
	SourceFile SourceType = "file"
	SourceURL  SourceType = "url"
)

// Source is where a sound's audio comes from: a local file or a remote address.
type Source struct {
	Type SourceType `json:"type" yaml:"type"`
	Path string     `json:"path,omitempty" yaml:"path,omitempty"`
	URL  string     `json:"url,omitempty" yaml:"url,omitempty"`
}

// FileSource and URLSource build sources.
func FileSource(path string) Source { return Source{Type: SourceFile, Path: path} }
func URLSource(url string) Source   { return Source{Type: SourceURL, URL: url} }

// ParseSource treats http(s) addresses as remote and anything else as a file path.
func ParseSource(s string) Source {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return URLSource(s)
	}
	return FileSource(s)
}

// Remote reports whether the source must be acquired over the network.
func (s Source) Remote() bool { return s.Type == SourceURL }

func (s Source) String() string {
	if s.Remote() {
		return s.URL
	}
	return s.Path
}

// Entry is one playable sound.
type Entry struct {
	ID      string   `json:"id" yaml:"id"`
	Source  Source   `json:"source" yaml:"source"`
	Volume  float64  `json:"volume" yaml:"volume"`
	Weight  *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Enabled bool     `json:"enabled" yaml:"enabled"`
}

// EffectiveWeight is the entry's weight, 1.0 when unset.
func (e Entry) EffectiveWeight() float64 {
	if e.Weight == nil {
		return 1
	}
	return *e.Weight
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	type plain Entry
	p := plain{Volume: 1, Enabled: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

func (e *Entry) UnmarshalYAML(n *yaml.Node) error {
	type plain Entry
	p := plain{Volume: 1, Enabled: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

// Selection is how a pool picks one of its entries.
type Selection string

const (
	SelectRandom     Selection = "random"
	SelectSequential Selection = "sequential"
	SelectWeighted   Selection = "weighted"
)

// Pool is an ordered list of candidate sounds.
type Pool struct {
	Sounds    []Entry   `json:"sounds" yaml:"sounds"`
	Selection Selection `json:"selectionMode,omitempty" yaml:"selectionMode,omitempty"`
}

// Enabled returns the enabled entries in pool order.
func (p Pool) Enabled() []Entry {
	out := make([]Entry, 0, len(p.Sounds))
	for _, s := range p.Sounds {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Logic combines a rule's conditions.
type Logic string

const (
	LogicAll Logic = "all"
	LogicAny Logic = "any"
)

// Rule maps a set of conditions to a pool. A rule without conditions never matches.
type Rule struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Priority   int         `json:"priority" yaml:"priority"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Logic      Logic       `json:"conditionLogic,omitempty" yaml:"conditionLogic,omitempty"`
	Sounds     Pool        `json:"sounds" yaml:"sounds"`
}

func (r *Rule) UnmarshalJSON(b []byte) error {
	type plain Rule
	p := plain{Enabled: true, Priority: DefaultPriority, Logic: LogicAll}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

func (r *Rule) UnmarshalYAML(n *yaml.Node) error {
	type plain Rule
	p := plain{Enabled: true, Priority: DefaultPriority, Logic: LogicAll}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

// ConditionType tags a Condition.
type ConditionType string

const (
	CondPlayer     ConditionType = "player"
	CondChampion   ConditionType = "champion"
	CondMultikill  ConditionType = "multikill"
	CondObjective  ConditionType = "objective"
	CondDragonType ConditionType = "dragonType"
	CondStolen     ConditionType = "stolen"
	CondTeam       ConditionType = "team"
	CondGameResult ConditionType = "gameResult"
	CondExpression ConditionType = "expression"
)

// Player and champion condition fields.
const (
	FieldKiller         = "killer"
	FieldVictim         = "victim"
	FieldKillerChampion = "killerChampion"
	FieldVictimChampion = "victimChampion"
)

// Condition is a tagged union; only the fields of its Type are meaningful.
type Condition struct {
	Type ConditionType `json:"type" yaml:"type"`

	Field              string   `json:"field,omitempty" yaml:"field,omitempty"`
	Players            []string `json:"players,omitempty" yaml:"players,omitempty"`
	IncludeLocalPlayer bool     `json:"includeLocalPlayer,omitempty" yaml:"includeLocalPlayer,omitempty"`
	Champions          []string `json:"champions,omitempty" yaml:"champions,omitempty"`

	KillTypes  []matchctx.MultiKill `json:"killTypes,omitempty" yaml:"killTypes,omitempty"`
	Objectives []matchctx.Objective `json:"objectives,omitempty" yaml:"objectives,omitempty"`
	Dragons    []matchctx.Dragon    `json:"dragons,omitempty" yaml:"dragons,omitempty"`
	IsStolen   bool                 `json:"isStolen,omitempty" yaml:"isStolen,omitempty"`
	Team       matchctx.Side        `json:"team,omitempty" yaml:"team,omitempty"`
	Result     matchctx.Outcome     `json:"result,omitempty" yaml:"result,omitempty"`

	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Settings apply to the whole pack.
type Settings struct {
	MasterVolume  float64 `json:"masterVolume" yaml:"masterVolume"`
	Normalization bool    `json:"normalization" yaml:"normalization"`
}

// DefaultSettings is full volume with normalisation on.
func DefaultSettings() Settings {
	return Settings{MasterVolume: 1, Normalization: true}
}

func (s *Settings) UnmarshalJSON(b []byte) error {
	type plain Settings
	p := plain(DefaultSettings())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = Settings(p)
	return nil
}

func (s *Settings) UnmarshalYAML(n *yaml.Node) error {
	type plain Settings
	p := plain(DefaultSettings())
	if err := n.Decode(&p); err != nil {
		return err
	}
	*s = Settings(p)
	return nil
}

// Pack is a complete sound pack. It is read-only once loaded.
type Pack struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	Version     string              `json:"version" yaml:"version"`
	Author      string              `json:"author,omitempty" yaml:"author,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Settings    Settings            `json:"settings" yaml:"settings"`
	Defaults    map[event.Kind]Pool `json:"defaults" yaml:"defaults"`
	Rules       []Rule              `json:"rules" yaml:"rules"`
}

// Default is the empty pack used when no pack file is configured.
func Default() *Pack {
	return &Pack{
		ID:       "default",
		Name:     "Default Sound Pack",
		Version:  DefaultVersion,
		Settings: DefaultSettings(),
		Defaults: map[event.Kind]Pool{},
	}
}

func (p *Pack) UnmarshalJSON(b []byte) error {
	type plain Pack
	v := plain{Version: DefaultVersion, Settings: DefaultSettings()}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Pack(v)
	return nil
}

func (p *Pack) UnmarshalYAML(n *yaml.Node) error {
	type plain Pack
	v := plain{Version: DefaultVersion, Settings: DefaultSettings()}
	if err := n.Decode(&v); err != nil {
		return err
	}
	*p = Pack(v)
	return nil
}
