package events

// template is a reusable event shape for random injection.
type template struct {
	Name          string
	Category      string
	DurationTicks int
	DecayRate     float64
	Impact        map[string]float64
}

// catalog holds the fixed set of injectable events. Kept short on
// purpose: injected events add texture to a run, they are not the
// scenario. Order matters, the injector indexes into it.
var catalog = []template{
	{
		Name:          "market-rally",
		Category:      "economic",
		DurationTicks: 4,
		DecayRate:     0.5,
		Impact:        map[string]float64{"economic_confidence": 0.2},
	},
	{
		Name:          "market-shock",
		Category:      "economic",
		DurationTicks: 5,
		DecayRate:     0.6,
		Impact:        map[string]float64{"economic_confidence": -0.3},
	},
	{
		Name:          "policy-announcement",
		Category:      "political",
		DurationTicks: 3,
		DecayRate:     0.4,
		Impact:        map[string]float64{"political_stability": 0.15},
	},
	{
		Name:          "political-scandal",
		Category:      "political",
		DurationTicks: 5,
		DecayRate:     0.5,
		Impact:        map[string]float64{"political_stability": -0.25, "media_attention": 0.2},
	},
	{
		Name:          "viral-story",
		Category:      "media",
		DurationTicks: 2,
		DecayRate:     0.3,
		Impact:        map[string]float64{"media_attention": 0.3},
	},
	{
		Name:          "news-cycle-fade",
		Category:      "media",
		DurationTicks: 3,
		DecayRate:     0.5,
		Impact:        map[string]float64{"media_attention": -0.15},
	},
}
