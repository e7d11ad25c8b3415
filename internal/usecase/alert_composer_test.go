package usecase

import (
	"context"
	"errors"
	"testing"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	events []models.SignalEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev models.SignalEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func TestComposeQuickHit(t *testing.T) {
	sig := models.Signal{ID: "s1", CardID: "c1", EdgeBp: 2450, Confidence: 0.874, Thesis: "under comps"}
	l := ask("l1", "c1", 7500, 0)
	l.URL = "https://market/l1"

	ev := ComposeQuickHit(sig, &models.Card{ID: "c1", Name: "Charizard"}, &l, "https://cards.example.com/")
	assert.Equal(t, "quick_hit", ev.Style)
	assert.Equal(t, "Charizard — 25% edge, conf 87%", ev.Headline)
	assert.Equal(t, []string{"under comps"}, ev.Bullets)
	assert.Equal(t, []string{"#PokemonTCG", "#TCG"}, ev.Hashtags)
	assert.Equal(t, "https://market/l1", ev.Links.Listing)
	assert.Equal(t, "https://cards.example.com/signals/s1/proof", ev.Links.Proof)

	ev = ComposeQuickHit(sig, nil, nil, "")
	assert.Equal(t, "c1 — 25% edge, conf 87%", ev.Headline)
	assert.Empty(t, ev.Links.Listing)
	assert.Equal(t, "/signals/s1/proof", ev.Links.Proof)
}

func TestAlertDispatcher(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.UpsertCard(context.Background(), models.Card{ID: "c1", Name: "Charizard"}))
	pub := &capturePublisher{}
	d := NewAlertDispatcher(store, pub, "https://cards.example.com", nil)

	sig := models.Signal{ID: "s1", CardID: "c1", EdgeBp: 1000, Confidence: 0.5}
	require.NoError(t, d.Notify(context.Background(), sig, ask("l1", "c1", 9000, 0)))
	unknown := models.Signal{ID: "s2", CardID: "c9", EdgeBp: -300, Confidence: 0.1}
	require.NoError(t, d.Notify(context.Background(), unknown, ask("l2", "c9", 9000, 0)))

	require.Len(t, pub.events, 2)
	assert.Equal(t, "Charizard — 10% edge, conf 50%", pub.events[0].Headline)
	require.NotNil(t, pub.events[0].Listing)
	assert.Equal(t, "l1", pub.events[0].Listing.ID)
	assert.Nil(t, pub.events[1].Card)
	assert.Equal(t, "c9 — -3% edge, conf 10%", pub.events[1].Headline)

	pub.err = errors.New("broker down")
	require.Error(t, d.Notify(context.Background(), sig, ask("l1", "c1", 9000, 0)))

	assert.NoError(t, NewAlertDispatcher(store, nil, "", nil).Notify(context.Background(), sig, models.Listing{}))
}
