package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gyaneshwarpardhi/scoutcue/internal/condition"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

// Validate checks the settings for values the process cannot start with.
func (s *Settings) Validate() error {
	var errs []string
	if s.LiveClient.BaseURL == "" {
		errs = append(errs, "liveclient.base_url is required")
	}
	if s.LiveClient.Timeout <= 0 {
		errs = append(errs, "liveclient.timeout must be positive")
	}
	if s.Poll.Interval <= 0 {
		errs = append(errs, "poll.interval must be positive")
	}
	if s.Poll.WarnWindow < 0 {
		errs = append(errs, "poll.warn_window must not be negative")
	}
	if s.Cache.Dir == "" {
		errs = append(errs, "cache.dir is required")
	}
	if s.Cache.PrewarmWorkers < 1 {
		errs = append(errs, "cache.prewarm_workers must be at least 1")
	}
	if s.Cache.PrewarmQueue < 1 {
		errs = append(errs, "cache.prewarm_queue must be at least 1")
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q: want text or json", s.Log.Format))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.Log.Level)); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q: %v", s.Log.Level, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("settings validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidatePack checks a sound pack for:
//   - Duplicate rule IDs
//   - Conditions that do not compile
//   - Sources without a path or with a non-http(s) address
//   - Out-of-range volumes and negative weights
//   - Unknown selection modes, logic modes and default event kinds
func ValidatePack(p *soundpack.Pack) error {
	var errs []string
	if p.Version == "" {
		errs = append(errs, "version is required")
	}
	if v := p.Settings.MasterVolume; v < 0 || v > 1 {
		errs = append(errs, fmt.Sprintf("settings.masterVolume %v: must be within [0, 1]", v))
	}

	for kind, pool := range p.Defaults {
		loc := fmt.Sprintf("defaults.%s", kind)
		if !kind.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown event kind", loc))
		}
		validatePool(pool, loc, &errs)
	}

	ids := make(map[string]int) // id → rule index
	for i, r := range p.Rules {
		loc := fmt.Sprintf("rules[%d]", i)
		if r.ID == "" {
			errs = append(errs, fmt.Sprintf("%s: id is required", loc))
		} else {
			loc = fmt.Sprintf("rule %s", r.ID)
			if prev, ok := ids[r.ID]; ok {
				errs = append(errs, fmt.Sprintf("duplicate rule id %q (rules[%d] and rules[%d])", r.ID, prev, i))
			} else {
				ids[r.ID] = i
			}
		}
		switch r.Logic {
		case "", soundpack.LogicAll, soundpack.LogicAny:
		default:
			errs = append(errs, fmt.Sprintf("%s: conditionLogic %q: want all or any", loc, r.Logic))
		}
		for j, c := range r.Conditions {
			if _, err := condition.Compile(c); err != nil {
				errs = append(errs, fmt.Sprintf("%s.conditions[%d]: %v", loc, j, err))
			}
		}
		validatePool(r.Sounds, loc, &errs)
	}

	if len(errs) > 0 {
		return fmt.Errorf("sound pack validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validatePool(pool soundpack.Pool, parent string, errs *[]string) {
	switch pool.Selection {
	case "", soundpack.SelectRandom, soundpack.SelectSequential, soundpack.SelectWeighted:
	default:
		*errs = append(*errs, fmt.Sprintf("%s: selectionMode %q: want random, sequential or weighted", parent, pool.Selection))
	}
	for i, e := range pool.Sounds {
		loc := fmt.Sprintf("%s.sounds[%d]", parent, i)
		if e.ID != "" {
			loc = fmt.Sprintf("%s.sounds[%s]", parent, e.ID)
		}
		if e.Volume < 0 || e.Volume > 1 {
			*errs = append(*errs, fmt.Sprintf("%s: volume %v must be within [0, 1]", loc, e.Volume))
		}
		if e.Weight != nil && *e.Weight < 0 {
			*errs = append(*errs, fmt.Sprintf("%s: weight must not be negative", loc))
		}
		switch e.Source.Type {
		case soundpack.SourceFile:
			if e.Source.Path == "" {
				*errs = append(*errs, fmt.Sprintf("%s: file source needs a path", loc))
			}
		case soundpack.SourceURL:
			u, err := url.Parse(e.Source.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				*errs = append(*errs, fmt.Sprintf("%s: url source %q is not an http(s) address", loc, e.Source.URL))
			}
		default:
			*errs = append(*errs, fmt.Sprintf("%s: source type %q: want file or url", loc, e.Source.Type))
		}
	}
}
