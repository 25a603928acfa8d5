package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/domain/frontier"
	"github.com/okian/champstock/internal/domain/model"
	"github.com/okian/champstock/internal/domain/scoring"
)

var errProviderDown = errors.New("provider down")

// fakeGateway answers for a set of players, keyed by tag.
type fakeGateway struct {
	mu       sync.Mutex
	history  map[string][]string // puuid -> ids, newest first
	matches  map[string]*model.MatchDetail
	broken   map[string]bool // puuid whose match fetch fails
	resolved int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		history: make(map[string][]string),
		matches: make(map[string]*model.MatchDetail),
		broken:  make(map[string]bool),
	}
}

func (g *fakeGateway) ResolvePUUID(_ context.Context, tag string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolved++
	return "puuid-" + tag, nil
}

func (g *fakeGateway) MatchIDs(_ context.Context, puuid string, _ int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.history[puuid]...), nil
}

func (g *fakeGateway) Match(_ context.Context, id string) (*model.MatchDetail, *model.MatchTimeline, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.matches[id]
	if !ok {
		return nil, nil, fmt.Errorf("match %s: not found", id)
	}
	for _, p := range d.Info.Participants {
		if g.broken[p.PUUID] {
			return nil, nil, errProviderDown
		}
	}
	return d, &model.MatchTimeline{}, nil
}

// addGame records a mid-lane game for tag at the head of its history.
func (g *fakeGateway) addGame(tag, id, champion string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	puuid := "puuid-" + tag
	g.history[puuid] = append([]string{id}, g.history[puuid]...)
	g.matches[id] = &model.MatchDetail{
		Metadata: model.MatchMetadata{MatchID: id},
		Info: model.MatchInfo{
			GameDuration: 1800,
			Participants: []model.Participant{
				{PUUID: puuid, ParticipantID: 1, TeamID: 100, TeamPosition: "MIDDLE", ChampionName: champion, Kills: 3},
			},
		},
	}
}

type fixture struct {
	store    *repository.MemoryStore
	gateway  *fakeGateway
	updater  *Updater
	marketID int64
	slots    []model.MarketPlayer
}

// newFixture builds a market with the given tags, each tracking Ahri and Azir, scored at 8.
func newFixture(tags ...string) *fixture {
	ctx := context.Background()
	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	store := repository.NewMemoryStore(repository.WithClock(now))
	id, _ := store.CreateMarket(ctx, model.Market{Name: "Test"})
	f := &fixture{store: store, gateway: newFakeGateway(), marketID: id}
	for _, tag := range tags {
		p, _ := store.AddPlayer(ctx, id, tag, model.ChampionPool{"Ahri", "Azir"})
		f.slots = append(f.slots, p)
	}
	reg := scoring.NewRegistry(scoring.WithModel(model.RoleMid, scoring.PredictorFunc(func([]float64) (float64, error) {
		return 8, nil
	})))
	scanner := frontier.NewScanner(store, reg, frontier.WithClock(now))
	f.updater = NewUpdater(store, scanner, func() frontier.Gateway { return f.gateway })
	return f
}
