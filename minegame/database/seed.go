package database

import "github.com/icgames/cryptomine/minegame/database/models"

// DefaultRigCatalog is the stock shop lineup. Seeding skips any name that
// already exists, so live deployments can rebalance rows in place.
func DefaultRigCatalog() []*models.RigType {
	return []*models.RigType{
		{
			Name:             "Scrapyard GPU",
			Description:      "A dusty second-hand graphics card. It mines, barely.",
			Tier:             1,
			HashRate:         0.00005,
			PowerConsumption: 40,
			BaseCost:         2500,
			IsActive:         true,
			SortOrder:        10,
		},
		{
			Name:             "Dual GPU Tower",
			Description:      "Two mid-range cards in a consumer case with loud fans.",
			Tier:             2,
			HashRate:         0.00015,
			PowerConsumption: 110,
			BaseCost:         8000,
			IsActive:         true,
			SortOrder:        20,
		},
		{
			Name:             "ASIC Shelf Unit",
			Description:      "Purpose-built mining silicon on a ventilated rack shelf.",
			Tier:             3,
			HashRate:         0.00045,
			PowerConsumption: 300,
			BaseCost:         25000,
			IsActive:         true,
			SortOrder:        30,
		},
		{
			Name:             "Container Farm",
			Description:      "A shipping container of immersion-cooled ASIC racks.",
			Tier:             4,
			HashRate:         0.0012,
			PowerConsumption: 750,
			BaseCost:         70000,
			IsActive:         true,
			SortOrder:        40,
		},
	}
}

// DefaultEventCatalog is the dormant pool the simulator draws from. Events
// cycle between dormant and active and are never deleted.
func DefaultEventCatalog() []*models.MarketEvent {
	return []*models.MarketEvent{
		{
			EventType:          "bullish",
			Title:              "Institutional Buy-In",
			Description:        "A major fund discloses a large position. Demand surges.",
			PriceImpactPercent: 20,
			DurationHours:      48,
		},
		{
			EventType:          "bullish",
			Title:              "Halving Hype",
			Description:        "Supply issuance just halved and the headlines write themselves.",
			PriceImpactPercent: 15,
			DurationHours:      72,
		},
		{
			EventType:          "bullish",
			Title:              "Payment Giant Integration",
			Description:        "A household-name processor starts settling in crypto.",
			PriceImpactPercent: 10,
			DurationHours:      24,
		},
		{
			EventType:          "bearish",
			Title:              "Exchange Hack",
			Description:        "A top-five exchange halts withdrawals after a breach.",
			PriceImpactPercent: -18,
			DurationHours:      48,
		},
		{
			EventType:          "bearish",
			Title:              "Regulatory Crackdown",
			Description:        "A large economy announces restrictions on mining operations.",
			PriceImpactPercent: -12,
			DurationHours:      72,
		},
		{
			EventType:          "bearish",
			Title:              "Energy Price Spike",
			Description:        "Grid costs jump and marginal miners capitulate.",
			PriceImpactPercent: -8,
			DurationHours:      24,
		},
	}
}
