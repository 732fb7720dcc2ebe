package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"log/slog"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/engine"
)

// Notifier receives user-facing market event notices. It is an external
// collaborator; delivery failures never fail the tick.
type Notifier interface {
	EventStarted(ctx context.Context, event *models.MarketEvent)
	EventEnded(ctx context.Context, event *models.MarketEvent)
}

// LogNotifier is the default Notifier: it just logs the notices.
type LogNotifier struct{}

func (LogNotifier) EventStarted(_ context.Context, event *models.MarketEvent) {
	slog.Info("Market event started",
		slog.String("type", "market"),
		slog.String("event", event.EventType),
		slog.String("title", event.Title),
		slog.Float64("impact_percent", event.PriceImpactPercent),
		slog.Int("duration_hours", event.DurationHours))
}

func (LogNotifier) EventEnded(_ context.Context, event *models.MarketEvent) {
	slog.Info("Market event ended",
		slog.String("type", "market"),
		slog.String("event", event.EventType),
		slog.String("title", event.Title))
}

type Config struct {
	AssetName      string
	InitialPrice   float64
	PriceFloor     float64
	PriceCeiling   float64
	VolatilityBand float64       // max absolute base movement per tick, e.g. 0.05
	EventChance    int           // 1-in-N chance per tick to trigger a dormant event
	TickInterval   time.Duration // nominal spacing between ticks
	RetentionDays  int           // history kept for charts and volatility
}

// Simulator advances the asset price once per tick: a bounded uniform walk
// plus the active event's per-tick share of its total impact.
type Simulator struct {
	store    repositories.MarketRepository
	notifier Notifier
	clock    engine.Clock
	rng      *rand.Rand
	cfg      Config
}

func NewSimulator(store repositories.MarketRepository, notifier Notifier, clock engine.Clock, rng *rand.Rand, cfg Config) *Simulator {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Simulator{
		store:    store,
		notifier: notifier,
		clock:    clock,
		rng:      rng,
		cfg:      cfg,
	}
}

// PerTickImpact spreads an event's flat percent impact evenly over its
// duration, in ticks. Events shorter than one tick land in full at once.
func PerTickImpact(impactPercent float64, durationHours, tickHours float64) float64 {
	ticks := durationHours / tickHours
	if ticks < 1 {
		ticks = 1
	}
	return impactPercent / 100 / ticks
}

// NextPrice applies the combined movement and clamps into the band.
func NextPrice(current, baseMovement, eventImpact, floor, ceiling float64) float64 {
	next := current * (1 + baseMovement + eventImpact)
	return math.Max(floor, math.Min(ceiling, next))
}

// RunTick advances the market by one step. The first tick against an empty
// table just seeds the initial quote.
func (s *Simulator) RunTick(ctx context.Context) error {
	now := s.clock.Now()

	state, err := s.store.GetMarket(ctx, s.cfg.AssetName)
	if errors.Is(err, repositories.ErrNotFound) {
		return s.store.InitMarket(ctx, &models.MarketState{
			AssetName:    s.cfg.AssetName,
			CurrentPrice: s.cfg.InitialPrice,
			LastUpdated:  now,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to load market: %w", err)
	}

	baseMovement := (s.rng.Float64()*2 - 1) * s.cfg.VolatilityBand
	tickHours := s.cfg.TickInterval.Hours()

	eventImpact, eventWasActive, err := s.applyActiveEvent(ctx, now, tickHours)
	if err != nil {
		return err
	}

	// A fresh event may only trigger when none is running, including the
	// tick one just expired on.
	if !eventWasActive {
		impact, err := s.maybeTriggerEvent(ctx, now, tickHours)
		if err != nil {
			return err
		}
		eventImpact = impact
	}

	oldPrice := state.CurrentPrice
	newPrice := NextPrice(oldPrice, baseMovement, eventImpact, s.cfg.PriceFloor, s.cfg.PriceCeiling)

	state.PreviousPrice = oldPrice
	state.CurrentPrice = newPrice
	state.PriceChangePercent = (newPrice - oldPrice) / oldPrice * 100
	state.LastUpdated = now

	if err := s.store.UpdatePrice(ctx, state); err != nil {
		return fmt.Errorf("failed to persist price: %w", err)
	}

	cutoff := now.AddDate(0, 0, -s.cfg.RetentionDays)
	pruned, err := s.store.PruneHistory(ctx, s.cfg.AssetName, cutoff)
	if err != nil {
		slog.Error("Failed to prune price history",
			slog.String("type", "market"),
			slog.Any("error", err))
	}

	slog.Info("Market tick completed",
		slog.String("type", "market"),
		slog.String("asset", s.cfg.AssetName),
		slog.Float64("price", newPrice),
		slog.Float64("change_percent", state.PriceChangePercent),
		slog.Int64("history_pruned", pruned))

	return nil
}

// applyActiveEvent returns the running event's per-tick impact, expiring it
// first when its duration is up. The second return reports whether an event
// occupied this tick (an event that expires frees the slot only for the
// next trigger roll, not its own).
func (s *Simulator) applyActiveEvent(ctx context.Context, now time.Time, tickHours float64) (float64, bool, error) {
	event, err := s.store.GetActiveEvent(ctx)
	if errors.Is(err, repositories.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load active event: %w", err)
	}

	if event.ExpiredAt(now) {
		if err := s.store.DeactivateEvent(ctx, event.ID); err != nil {
			return 0, false, fmt.Errorf("failed to expire event: %w", err)
		}
		s.notifier.EventEnded(ctx, event)
		return 0, false, nil
	}

	return PerTickImpact(event.PriceImpactPercent, float64(event.DurationHours), tickHours), true, nil
}

// maybeTriggerEvent rolls the fixed 1-in-N chance and, on a hit, activates
// a random dormant event, applying its first-tick impact immediately. An
// empty dormant pool is a valid no-op.
func (s *Simulator) maybeTriggerEvent(ctx context.Context, now time.Time, tickHours float64) (float64, error) {
	if s.cfg.EventChance <= 0 || s.rng.Intn(s.cfg.EventChance) != 0 {
		return 0, nil
	}

	dormant, err := s.store.GetDormantEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load dormant events: %w", err)
	}
	if len(dormant) == 0 {
		return 0, nil
	}

	event := dormant[s.rng.Intn(len(dormant))]
	if err := s.store.ActivateEvent(ctx, event.ID, now); err != nil {
		return 0, fmt.Errorf("failed to activate event: %w", err)
	}
	event.IsActive = true
	event.TriggeredAt = now
	s.notifier.EventStarted(ctx, event)

	return PerTickImpact(event.PriceImpactPercent, float64(event.DurationHours), tickHours), nil
}

// Volatility returns the standard deviation of recent history as a percent
// of its mean. It is derived on demand, never persisted. Fewer than two
// points yield zero.
func (s *Simulator) Volatility(ctx context.Context, days int) (float64, error) {
	since := s.clock.Now().AddDate(0, 0, -days)
	points, err := s.store.GetHistory(ctx, s.cfg.AssetName, since)
	if err != nil {
		return 0, err
	}
	if len(points) < 2 {
		return 0, nil
	}

	var sum float64
	for _, p := range points {
		sum += p.Price
	}
	mean := sum / float64(len(points))

	var variance float64
	for _, p := range points {
		variance += (p.Price - mean) * (p.Price - mean)
	}
	variance /= float64(len(points))

	return math.Sqrt(variance) / mean * 100, nil
}
