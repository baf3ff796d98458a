package population

import (
	"fmt"

	"github.com/nvandessel/simcast/internal/models"
	"github.com/nvandessel/simcast/internal/rng"
)

var (
	synthSegments   = []string{"urban", "suburban", "rural"}
	synthRegions    = []string{"north", "south", "east", "west"}
	synthGenders    = []string{"female", "male", "nonbinary"}
	synthEducations = []string{"secondary", "bachelor", "graduate"}
	synthIncomes    = []string{"low", "middle", "high"}
	synthOptions    = []string{"adopt", "wait", "reject"}
)

// Synthesize generates a deterministic persona set for development and
// testing. The same (n, seed) pair always yields the same records, so
// full-run determinism tests can build their population from it.
func Synthesize(n int, seed uint32) []PersonaRecord {
	stream := rng.New(seed).Derive("personas")
	records := make([]PersonaRecord, 0, n)
	for i := 0; i < n; i++ {
		prefs := make(map[string]float64, len(synthOptions))
		for _, opt := range synthOptions {
			prefs[opt] = 0.1 + stream.NextFloat()
		}

		records = append(records, PersonaRecord{
			ID:      fmt.Sprintf("agent-%04d", i),
			Segment: pick(stream, synthSegments),
			Demographics: models.Demographics{
				Age:           18 + int(stream.NextUint32()%63),
				Region:        pick(stream, synthRegions),
				Gender:        pick(stream, synthGenders),
				Education:     pick(stream, synthEducations),
				IncomeBracket: pick(stream, synthIncomes),
			},
			Behavioral: models.BehavioralParams{
				StatusQuoBias:          0.1 + 0.4*stream.NextFloat(),
				BandwagonWeight:        0.1 + 0.4*stream.NextFloat(),
				AnchoringWeight:        0.1 + 0.3*stream.NextFloat(),
				ConfirmationBias:       0.1 + 0.4*stream.NextFloat(),
				LossAversion:           0.2 + 0.6*stream.NextFloat(),
				InteractionCoefficient: 0.2 + 0.6*stream.NextFloat(),
			},
			Psychographics: models.Psychographics{
				Openness:      stream.NextFloat(),
				Conformity:    stream.NextFloat(),
				RiskTolerance: stream.NextFloat(),
			},
			Preferences: prefs,
			Engagement:  0.3 + 0.6*stream.NextFloat(),
		})
	}
	return records
}

func pick(s *rng.Stream, options []string) string {
	return options[int(s.NextUint32()%uint32(len(options)))]
}
