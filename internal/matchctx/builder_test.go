package matchctx

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
)

var roster = []event.Participant{
	{SummonerName: "Me", ChampionName: "Ahri", Team: "ORDER"},
	{SummonerName: "Buddy", ChampionName: "Leona", Team: "ORDER"},
	{SummonerName: "Rival", RiotIDGameName: "RivalGame", ChampionName: "Zed", Team: "CHAOS"},
}

func localMe() *event.Participant {
	return &event.Participant{SummonerName: "Me"}
}

func TestBuild(t *testing.T) {
	cases := []struct {
		name  string
		local *event.Participant
		ev    event.GameEvent
		want  EventContext
	}{
		{
			name:  "local kill on enemy",
			local: localMe(),
			ev:    event.GameEvent{Seq: 1, Kind: event.KindKill, Name: "ChampionKill", Killer: "Me", Victim: "Rival"},
			want: EventContext{
				Seq: 1, Kind: event.KindKill,
				Actor:  Party{Name: "Me", Champion: "Ahri", Local: true},
				Target: Party{Name: "Rival", Champion: "Zed"},
				Side:   SideAlly,
			},
		},
		{
			name:  "enemy kill resolved through riot id",
			local: localMe(),
			ev:    event.GameEvent{Seq: 2, Kind: event.KindKill, Name: "ChampionKill", Killer: "RivalGame", Victim: "Buddy"},
			want: EventContext{
				Seq: 2, Kind: event.KindKill,
				Actor:  Party{Name: "RivalGame", Champion: "Zed"},
				Target: Party{Name: "Buddy", Champion: "Leona"},
				Side:   SideEnemy,
			},
		},
		{
			name:  "unknown local is never local",
			local: nil,
			ev:    event.GameEvent{Seq: 3, Kind: event.KindKill, Name: "ChampionKill", Killer: "Me", Victim: "Rival"},
			want: EventContext{
				Seq: 3, Kind: event.KindKill,
				Actor:  Party{Name: "Me", Champion: "Ahri"},
				Target: Party{Name: "Rival", Champion: "Zed"},
			},
		},
		{
			name:  "local match is case-respecting",
			local: localMe(),
			ev:    event.GameEvent{Seq: 4, Kind: event.KindKill, Name: "ChampionKill", Killer: "me", Victim: "Rival"},
			want: EventContext{
				Seq: 4, Kind: event.KindKill,
				Actor:  Party{Name: "me"},
				Target: Party{Name: "Rival", Champion: "Zed"},
			},
		},
		{
			name:  "multikill tier",
			local: localMe(),
			ev:    event.GameEvent{Seq: 5, Kind: event.KindMultiKill, Name: "Multikill", Killer: "Me", KillStreak: 5},
			want: EventContext{
				Seq: 5, Kind: event.KindMultiKill,
				Actor:     Party{Name: "Me", Champion: "Ahri", Local: true},
				Side:      SideAlly,
				MultiKill: MultiKillPenta,
			},
		},
		{
			name:  "stolen elder dragon",
			local: localMe(),
			ev:    event.GameEvent{Seq: 6, Kind: event.KindObjective, Name: "DragonKill", Killer: "Rival", DragonType: "Elder", Stolen: true},
			want: EventContext{
				Seq: 6, Kind: event.KindObjective,
				Actor:     Party{Name: "Rival", Champion: "Zed"},
				Side:      SideEnemy,
				Objective: ObjectiveDragon,
				Subtype:   DragonElder,
				Stolen:    true,
			},
		},
		{
			name:  "turret taken by minions resolves side from structure",
			local: localMe(),
			ev:    event.GameEvent{Seq: 7, Kind: event.KindObjective, Name: "TurretKilled", Killer: "Minion_T100L_3", Structure: "Turret_T2_L_03_A"},
			want: EventContext{
				Seq: 7, Kind: event.KindObjective,
				Actor:     Party{Name: "Minion_T100L_3"},
				Side:      SideAlly,
				Objective: ObjectiveTower,
			},
		},
		{
			name:  "ace by enemy team",
			local: localMe(),
			ev:    event.GameEvent{Seq: 8, Kind: event.KindAce, Name: "Ace", Acer: "Rival", AcingTeam: "CHAOS"},
			want: EventContext{
				Seq: 8, Kind: event.KindAce,
				Actor: Party{Name: "Rival", Champion: "Zed"},
				Side:  SideEnemy,
			},
		},
		{
			name:  "game end",
			local: localMe(),
			ev:    event.GameEvent{Seq: 9, Kind: event.KindGameEnd, Name: "GameEnd", Result: "Win"},
			want:  EventContext{Seq: 9, Kind: event.KindGameEnd, Outcome: OutcomeVictory},
		},
		{
			name:  "first blood recipient",
			local: localMe(),
			ev:    event.GameEvent{Seq: 10, Kind: event.KindFirstBlood, Name: "FirstBlood", Recipient: "Buddy"},
			want: EventContext{
				Seq: 10, Kind: event.KindFirstBlood,
				Actor: Party{Name: "Buddy", Champion: "Leona"},
				Side:  SideAlly,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewBuilder(tc.local, roster).Build(tc.ev)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Build mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildUnknownParticipantLeavesTeamUnresolved(t *testing.T) {
	ctx, err := NewBuilder(localMe(), roster).Build(event.GameEvent{Seq: 1, Kind: event.KindKill, Killer: "Stranger", Victim: "Me"})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Side != SideUnknown {
		t.Fatalf("Side = %q, want unresolved", ctx.Side)
	}
	if !ctx.Target.Local {
		t.Error("victim should be local")
	}
}

func TestBuildMalformed(t *testing.T) {
	cases := map[string]event.GameEvent{
		"kill without victim":  {Seq: 1, Kind: event.KindKill, Killer: "Me"},
		"multikill streak one": {Seq: 2, Kind: event.KindMultiKill, Killer: "Me", KillStreak: 1},
		"unknown objective":    {Seq: 3, Kind: event.KindObjective, Name: "HordeKill"},
		"ace without team":     {Seq: 4, Kind: event.KindAce, Acer: "Me"},
		"unsupported kind":     {Seq: 5, Kind: event.KindUnknown, Name: "MinionsSpawning"},
		"first blood nobody":   {Seq: 6, Kind: event.KindFirstBlood},
	}
	b := NewBuilder(localMe(), roster)
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := b.Build(ev); !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("err = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestParsers(t *testing.T) {
	if ParseDragon("Fire") != DragonInfernal || ParseDragon("Air") != DragonCloud || ParseDragon("chemtech") != DragonChemtech {
		t.Error("dragon element names not normalised")
	}
	if ParseDragon("Void") != DragonNone {
		t.Error("unknown dragon should be none")
	}
	if ParseOutcome("Lose") != OutcomeDefeat || ParseOutcome("Victory") != OutcomeVictory || ParseOutcome("") != OutcomeNone {
		t.Error("outcome not normalised")
	}
	if ParseMultiKill(7) != MultiKillPenta || ParseMultiKill(3) != MultiKillTriple {
		t.Error("multikill tiers wrong")
	}
}

func TestResolve(t *testing.T) {
	ctx := EventContext{Kind: event.KindKill, Actor: Party{Name: "Me", Local: true}, Side: SideAlly}
	if v, ok := ctx.Resolve([]string{"actor", "local"}); !ok || v != true {
		t.Errorf("actor.local = %v, %v", v, ok)
	}
	if _, ok := ctx.Resolve([]string{"multikill"}); ok {
		t.Error("empty multikill should resolve as absent")
	}
	if v, _ := ctx.Resolve([]string{"kind"}); v != "kill" {
		t.Errorf("kind = %v", v)
	}
}
