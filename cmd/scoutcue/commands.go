package main

import (
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/gyaneshwarpardhi/scoutcue/internal/config"
	"github.com/gyaneshwarpardhi/scoutcue/internal/engine"
	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
	"github.com/gyaneshwarpardhi/scoutcue/internal/matchctx"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

func loadPack(s *config.Settings) (*soundpack.Pack, error) {
	l, err := config.NewPackLoader(s.Pack.Path, s.Pack.Overrides, newLogger(s))
	if err != nil {
		return nil, err
	}
	return l.Pack(), nil
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "check settings and the sound pack, exit non-zero on problems",
		Action: func(c *cli.Context) error {
			s, err := loadSettings(c)
			if err != nil {
				return err
			}
			p, err := loadPack(s)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "sound pack %q (%s) is valid: %d rules, %d default pools, %d remote sounds\n",
				p.Name, p.Version, len(p.Rules), len(p.Defaults), len(p.RemoteSources()))
			return nil
		},
	}
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "show which sound the pack picks for a synthetic event",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Value: string(event.KindKill), Usage: "event kind"},
			&cli.StringFlag{Name: "actor", Usage: "killer / recipient name"},
			&cli.StringFlag{Name: "actor-champion"},
			&cli.BoolFlag{Name: "actor-local", Usage: "the actor is the local player"},
			&cli.StringFlag{Name: "target", Usage: "victim name"},
			&cli.StringFlag{Name: "target-champion"},
			&cli.BoolFlag{Name: "target-local", Usage: "the target is the local player"},
			&cli.StringFlag{Name: "side", Usage: "ally or enemy"},
			&cli.IntFlag{Name: "streak", Usage: "kill streak, 2..5 for multi-kills"},
			&cli.StringFlag{Name: "objective", Usage: "dragon, baron, herald, tower or inhibitor"},
			&cli.StringFlag{Name: "dragon", Usage: "dragon subtype"},
			&cli.BoolFlag{Name: "stolen"},
			&cli.StringFlag{Name: "outcome", Usage: "victory or defeat"},
		},
		Action: func(c *cli.Context) error {
			ec, err := previewContext(c)
			if err != nil {
				return err
			}
			s, err := loadSettings(c)
			if err != nil {
				return err
			}
			p, err := loadPack(s)
			if err != nil {
				return err
			}
			eng, err := engine.New(p)
			if err != nil {
				return err
			}
			d, ok := eng.Decide(ec)
			if !ok {
				fmt.Fprintln(c.App.Writer, "nothing to play: no rule matched and no default sound")
				return nil
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
}

func previewContext(c *cli.Context) (matchctx.EventContext, error) {
	kind := event.Kind(c.String("kind"))
	if !kind.Valid() {
		return matchctx.EventContext{}, fmt.Errorf("unknown event kind %q (want one of %v)", kind, event.Kinds)
	}
	ec := matchctx.EventContext{
		Kind:    kind,
		Actor:   matchctx.Party{Name: c.String("actor"), Champion: c.String("actor-champion"), Local: c.Bool("actor-local")},
		Target:  matchctx.Party{Name: c.String("target"), Champion: c.String("target-champion"), Local: c.Bool("target-local")},
		Side:    matchctx.Side(c.String("side")),
		Stolen:  c.Bool("stolen"),
		Outcome: matchctx.ParseOutcome(c.String("outcome")),
	}
	switch ec.Side {
	case matchctx.SideUnknown, matchctx.SideAlly, matchctx.SideEnemy:
	default:
		return matchctx.EventContext{}, fmt.Errorf("side %q: want ally or enemy", ec.Side)
	}
	if streak := c.Int("streak"); streak > 0 {
		ec.MultiKill = matchctx.ParseMultiKill(streak)
	}
	if o := c.String("objective"); o != "" {
		ec.Objective = matchctx.Objective(o)
	}
	if d := c.String("dragon"); d != "" {
		ec.Subtype = matchctx.ParseDragon(d)
	}
	return ec, nil
}

func prewarmCommand() *cli.Command {
	return &cli.Command{
		Name:  "prewarm",
		Usage: "download every remote sound of the pack into the cache",
		Action: func(c *cli.Context) error {
			s, err := loadSettings(c)
			if err != nil {
				return err
			}
			p, err := loadPack(s)
			if err != nil {
				return err
			}
			logger := newLogger(s)
			cache, err := newCache(c.Context, s, logger)
			if err != nil {
				return err
			}
			defer cache.Close()

			remote := p.RemoteSources()
			type result struct {
				address, path string
				err           error
			}
			results := make([]result, len(remote))
			sem := make(chan struct{}, max(1, s.Cache.PrewarmWorkers))
			var wg sync.WaitGroup
			for i, address := range remote {
				wg.Add(1)
				sem <- struct{}{}
				go func() {
					defer func() { <-sem; wg.Done() }()
					path, err := cache.Resolve(c.Context, soundpack.URLSource(address))
					results[i] = result{address: address, path: path, err: err}
				}()
			}
			wg.Wait()

			failed := 0
			for _, r := range results {
				if r.err != nil {
					failed++
					fmt.Fprintf(c.App.Writer, "FAIL %s: %v\n", r.address, r.err)
					continue
				}
				fmt.Fprintf(c.App.Writer, "ok   %s -> %s\n", r.address, r.path)
			}
			fmt.Fprintf(c.App.Writer, "%d of %d remote sounds cached in %s\n", len(remote)-failed, len(remote), cache.Dir())
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d downloads failed", failed), 1)
			}
			return nil
		},
	}
}
