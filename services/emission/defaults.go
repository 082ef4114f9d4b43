package emission

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/governance-ledger/models"
	"go.uber.org/zap"
)

// DefaultTokens are seeded before the first cycle
func DefaultTokens() []models.TokenConfig {
	return []models.TokenConfig{
		{Symbol: "SHEEP", Name: "Sheep", Decimals: 18},
		{Symbol: "DREAM", Name: "Dream", Decimals: 18},
	}
}

// DefaultRules are seeded before the first cycle. IDs are fixed so reseeding is a no-op.
func DefaultRules() []models.EmissionRule {
	return []models.EmissionRule{
		{ID: "zen-garden.daily.SHEEP", Source: "zen-garden", Kind: "daily", Token: "SHEEP", Multiplier: 2},
		{ID: "zen-garden.streak.SHEEP", Source: "zen-garden", Kind: "streak", Token: "SHEEP", Multiplier: 5},
		{ID: "dream-network.dream_created.DREAM", Source: "dream-network", Kind: "dream_created", Token: "DREAM", Multiplier: 1},
		{ID: "dream-network.dream_created.SHEEP", Source: "dream-network", Kind: "dream_created", Token: "SHEEP", Multiplier: 0.1},
		{ID: "dream-network.dream_remixed.DREAM", Source: "dream-network", Kind: "dream_remixed", Token: "DREAM", Multiplier: 0.5},
	}
}

// EnsureDefaults seeds DefaultTokens and DefaultRules that are not yet stored.
// It returns how many of each were created.
func (e *Engine) EnsureDefaults(ctx context.Context) (tokens int, rules int, err error) {
	now := time.Now().UTC()

	for _, t := range DefaultTokens() {
		t.CreatedAt = now
		created, err := e.tokens.CreateIfAbsent(ctx, &t)
		if err != nil {
			return tokens, rules, fmt.Errorf("failed to seed token %s: %w", t.Symbol, err)
		}
		if created {
			tokens++
		}
	}

	for _, r := range DefaultRules() {
		r.CreatedAt = now
		created, err := e.rules.CreateIfAbsent(ctx, &r)
		if err != nil {
			return tokens, rules, fmt.Errorf("failed to seed emission rule %s: %w", r.ID, err)
		}
		if created {
			rules++
		}
	}

	if tokens > 0 || rules > 0 {
		e.logger.Info("seeded emission defaults",
			zap.Int("tokens", tokens),
			zap.Int("rules", rules))
	}
	return tokens, rules, nil
}
