package soundpack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
)

// Format is the encoding of a pack file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatOf picks the format from a file extension; anything not YAML is JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Decode parses a pack.
func Decode(data []byte, f Format) (*Pack, error) {
	var p Pack
	var err error
	if f == FormatYAML {
		err = yaml.Unmarshal(data, &p)
	} else {
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, err
	}
	if p.Version == "" {
		p.Version = DefaultVersion
	}
	if p.Defaults == nil {
		p.Defaults = map[event.Kind]Pool{}
	}
	return &p, nil
}

// Load reads and decodes the pack at path.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sound pack %s: %w", path, err)
	}
	p, err := Decode(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("parse sound pack %s: %w", path, err)
	}
	return p, nil
}

// WithOverrides returns a copy of the pack whose default pools are replaced by
// the per-event overrides (event kind -> source string). Empty values are ignored.
func (p *Pack) WithOverrides(overrides map[string]string) (*Pack, error) {
	out := *p
	out.Defaults = make(map[event.Kind]Pool, len(p.Defaults)+len(overrides))
	for k, pool := range p.Defaults {
		out.Defaults[k] = pool
	}
	for key, value := range overrides {
		if strings.TrimSpace(value) == "" {
			continue
		}
		kind, ok := kindByName(key)
		if !ok {
			return nil, fmt.Errorf("sound override: unknown event %q", key)
		}
		out.Defaults[kind] = Pool{
			Sounds: []Entry{{
				ID:      "override-" + string(kind),
				Source:  ParseSource(value),
				Volume:  1,
				Enabled: true,
			}},
			Selection: SelectRandom,
		}
	}
	return &out, nil
}

// kind keys in config files are case-insensitive ("firstblood", "FirstBlood").
func kindByName(name string) (event.Kind, bool) {
	for _, k := range event.Kinds {
		if strings.EqualFold(string(k), name) {
			return k, true
		}
	}
	return event.KindUnknown, false
}

// RemoteSources lists the distinct remote addresses used anywhere in the pack,
// defaults first in kind order, then rules in pack order.
func (p *Pack) RemoteSources() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(pool Pool) {
		for _, e := range pool.Sounds {
			if !e.Source.Remote() || e.Source.URL == "" {
				continue
			}
			if _, ok := seen[e.Source.URL]; ok {
				continue
			}
			seen[e.Source.URL] = struct{}{}
			out = append(out, e.Source.URL)
		}
	}
	for _, k := range event.Kinds {
		if pool, ok := p.Defaults[k]; ok {
			add(pool)
		}
	}
	for _, r := range p.Rules {
		add(r.Sounds)
	}
	return out
}
