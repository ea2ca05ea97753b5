package catalog

import "github.com/shopspring/decimal"

// Cost in credits for every premium style.
const PremiumStyleCost = 30

// IncludedStyles are the free styles granted in bulk by the unlock
// product.
var IncludedStyles = []string{"minimal_clean", "dark_gradient", "asphalt_texture"}

// Default returns the production catalog.
func Default() *Static {
	return NewStatic(defaultStyles, defaultProducts)
}

var defaultStyles = []Style{
	// Included styles.
	{ID: "minimal_clean", Name: "Minimal Clean", Cost: 0, Included: true, Active: true, SortOrder: 1, Category: "style"},
	{ID: "dark_gradient", Name: "Dark Gradient", Cost: 0, Included: true, Active: true, SortOrder: 2, Category: "style"},
	{ID: "asphalt_texture", Name: "Asphalt", Cost: 0, Included: true, Active: true, SortOrder: 3, Category: "style"},

	// Environments.
	{ID: "neon_city", Name: "Neon City", Cost: PremiumStyleCost, Active: true, SortOrder: 10, Category: "environment"},
	{ID: "mountain_sunset", Name: "Mountain Sunset", Cost: PremiumStyleCost, Active: true, SortOrder: 11, Category: "environment"},
	{ID: "racing_track", Name: "Racing Track", Cost: PremiumStyleCost, Active: true, SortOrder: 12, Category: "environment"},
	{ID: "urban_garage", Name: "Urban Garage", Cost: PremiumStyleCost, Active: true, SortOrder: 13, Category: "environment"},
	{ID: "forest_road", Name: "Forest Road", Cost: PremiumStyleCost, Active: true, SortOrder: 14, Category: "environment"},
	{ID: "beach_coast", Name: "Beach Coast", Cost: PremiumStyleCost, Active: true, SortOrder: 15, Category: "environment"},

	// Artistic.
	{ID: "oil_painting", Name: "Oil Painting", Cost: PremiumStyleCost, Active: true, SortOrder: 20, Category: "artistic"},
	{ID: "comic_book", Name: "Comic Book", Cost: PremiumStyleCost, Active: true, SortOrder: 21, Category: "artistic"},
	{ID: "retro_80s", Name: "Retro 80s", Cost: PremiumStyleCost, Active: true, SortOrder: 22, Category: "artistic"},

	// Seasonal.
	{ID: "winter_snow", Name: "Winter Snow", Cost: PremiumStyleCost, Active: true, SortOrder: 30, Category: "seasonal"},
	{ID: "autumn_leaves", Name: "Autumn Leaves", Cost: PremiumStyleCost, Active: true, SortOrder: 31, Category: "seasonal"},
	{ID: "spring_bloom", Name: "Spring Bloom", Cost: PremiumStyleCost, Active: true, SortOrder: 32, Category: "seasonal"},
}

var defaultProducts = []Product{
	{
		ID:      "unlock_plus_899",
		Credits: 100,
		Unlock:  true,
		Price:   decimal.RequireFromString("8.99"),
		Unlocks: IncludedStyles,
	},
	{ID: "credits_40_399", Credits: 40, Price: decimal.RequireFromString("3.99")},
	{ID: "credits_120_999", Credits: 120, Price: decimal.RequireFromString("9.99")},
	{ID: "credits_260_1999", Credits: 260, Price: decimal.RequireFromString("19.99")},
	{ID: "credits_520_3499", Credits: 520, Price: decimal.RequireFromString("34.99")},
}
