package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	applogger "CardSignals/pkg/logger"
	"CardSignals/pkg/util"
)

var quickHitTags = []string{"#PokemonTCG", "#TCG"}

// ComposeQuickHit builds the short alert for a signal. card may be nil when
// the card row is unknown; the card id is used as the name then.
func ComposeQuickHit(sig models.Signal, card *models.Card, l *models.Listing, proofBase string) models.SignalEvent {
	name := sig.CardID
	if card != nil && card.Name != "" {
		name = card.Name
	}
	pct := int64(util.RoundHalfUp(float64(sig.EdgeBp) / 100))
	conf := int64(util.RoundHalfUp(sig.Confidence * 100))

	ev := models.SignalEvent{
		Style:    "quick_hit",
		Signal:   sig,
		Card:     card,
		Listing:  l,
		Headline: fmt.Sprintf("%s — %d%% edge, conf %d%%", name, pct, conf),
		Bullets:  []string{sig.Thesis},
		Hashtags: append([]string(nil), quickHitTags...),
		Links:    models.AlertLinks{Proof: ProofURL(proofBase, sig.ID)},
	}
	if l != nil {
		ev.Links.Listing = l.URL
	}
	return ev
}

// ProofURL is where the evidence behind a signal can be fetched.
func ProofURL(base, signalID string) string {
	return strings.TrimRight(base, "/") + "/signals/" + signalID + "/proof"
}

// AlertDispatcher composes and publishes alerts for new signals.
type AlertDispatcher struct {
	cards     domrepo.CardReader
	pub       domrepo.SignalPublisher
	proofBase string
	l         *applogger.Logger
}

func NewAlertDispatcher(cards domrepo.CardReader, pub domrepo.SignalPublisher, proofBase string, l *applogger.Logger) *AlertDispatcher {
	if l == nil {
		l = applogger.Nop()
	}
	return &AlertDispatcher{cards: cards, pub: pub, proofBase: proofBase, l: l}
}

// Notify looks up the card for the headline and publishes. A failed card
// lookup degrades the headline instead of dropping the alert.
func (d *AlertDispatcher) Notify(ctx context.Context, sig models.Signal, l models.Listing) error {
	if d.pub == nil {
		return nil
	}
	var card *models.Card
	if d.cards != nil {
		c, err := d.cards.GetCard(ctx, sig.CardID)
		switch {
		case err == nil:
			card = c
		case errors.Is(err, domrepo.ErrNotFound):
		default:
			d.l.Warn("card lookup for alert failed", applogger.String("card_id", sig.CardID), applogger.Error(err))
		}
	}
	ev := ComposeQuickHit(sig, card, &l, d.proofBase)
	if err := d.pub.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish signal %s: %w", sig.ID, err)
	}
	return nil
}

var _ SignalNotifier = (*AlertDispatcher)(nil)
