package service

import (
	"fmt"
	"sort"

	"dispatch/internal/domain"
)

// Scoring weights. Each term is clamped to its stated range and computed by
// an independent pure function so terms can be tested in isolation.
const (
	ratingWeight           = 30.0
	experienceWeight       = 20.0
	complianceWeight       = 20.0
	communityWeight        = 15.0
	infringementPenaltyCap = 10.0
	proximityWeight        = 15.0
	familiarityBonus       = 5.0

	experienceRidesCap  = 100.0
	communityActsCap    = 10.0
	infringementPenalty = 2.0
)

// ScoredCandidate is a candidate with its total score and the human-readable
// justifications that produced it.
type ScoredCandidate struct {
	Driver  *domain.DriverCandidate
	Score   float64
	Reasons []string
}

// Preferences optionally re-orders a ranking after scoring. The flags are
// mutually overriding: PrioritizeRating wins over PrioritizeETA.
type Preferences struct {
	PrioritizeRating bool `json:"prioritize_rating"`
	PrioritizeETA    bool `json:"prioritize_eta"`
}

// ScoringEngine produces a deterministic, explainable ranking of candidate
// drivers. It is pure: identical input always yields identical output.
type ScoringEngine struct{}

// NewScoringEngine creates a new ScoringEngine.
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// Score computes the weighted total for one candidate along with the reasons
// whose thresholds were met.
func (e *ScoringEngine) Score(c *domain.DriverCandidate) (float64, []string) {
	var total float64
	var reasons []string

	terms := []func(*domain.DriverCandidate) (float64, string){
		ratingTerm,
		experienceTerm,
		complianceTerm,
		communityTerm,
		infringementTerm,
		proximityTerm,
		familiarityTerm,
	}

	for _, term := range terms {
		points, reason := term(c)
		total += points
		if reason != "" {
			reasons = append(reasons, reason)
		}
	}
	return total, reasons
}

// Rank sorts candidates by descending total score. Ties keep their input
// order (stable sort). Preference flags are applied afterwards as pure
// re-sorts, not blended into the weighted score.
func (e *ScoringEngine) Rank(candidates []*domain.DriverCandidate, prefs *Preferences) []ScoredCandidate {
	ranked := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		score, reasons := e.Score(c)
		ranked = append(ranked, ScoredCandidate{Driver: c, Score: score, Reasons: reasons})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	switch {
	case prefs != nil && prefs.PrioritizeRating:
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Driver.Rating > ranked[j].Driver.Rating })
	case prefs != nil && prefs.PrioritizeETA:
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Driver.EstimatedEtaMinutes < ranked[j].Driver.EstimatedEtaMinutes
		})
	}
	return ranked
}

// ratingTerm maps the 0-5 star rating onto 0-30 points.
func ratingTerm(c *domain.DriverCandidate) (float64, string) {
	points := clamp(c.Rating/5.0*ratingWeight, 0, ratingWeight)
	if c.Rating >= 4.5 {
		return points, "Highly rated driver"
	}
	return points, ""
}

// experienceTerm maps total rides onto 0-20 points, saturating at 100 rides.
func experienceTerm(c *domain.DriverCandidate) (float64, string) {
	ratio := float64(c.TotalRides) / experienceRidesCap
	points := clamp(ratio, 0, 1) * experienceWeight
	if c.TotalRides > 200 {
		return points, "Experienced driver"
	}
	return points, ""
}

// complianceTerm maps the 0-100 compliance score onto 0-20 points.
func complianceTerm(c *domain.DriverCandidate) (float64, string) {
	points := clamp(c.ComplianceScore/100.0*complianceWeight, 0, complianceWeight)
	if c.ComplianceScore >= 95 {
		return points, "Excellent compliance record"
	}
	return points, ""
}

// communityTerm rewards exceptional-service events, 0-15 points, saturating
// at 10 acts.
func communityTerm(c *domain.DriverCandidate) (float64, string) {
	ratio := float64(c.ChampionActs) / communityActsCap
	points := clamp(ratio, 0, 1) * communityWeight
	if c.ChampionActs >= 5 {
		return points, "Community champion"
	}
	return points, ""
}

// infringementTerm subtracts 2 points per infringement, capped at -10.
func infringementTerm(c *domain.DriverCandidate) (float64, string) {
	penalty := clamp(float64(c.InfringementCount)*infringementPenalty, 0, infringementPenaltyCap)
	if c.InfringementCount > 0 {
		return -penalty, fmt.Sprintf("%d infringement(s) on record", c.InfringementCount)
	}
	return -penalty, ""
}

// proximityTerm awards up to 15 points, one lost per ETA minute.
func proximityTerm(c *domain.DriverCandidate) (float64, string) {
	points := clamp(proximityWeight-c.EstimatedEtaMinutes, 0, proximityWeight)
	if c.EstimatedEtaMinutes <= 3 {
		return points, "Very close by"
	}
	return points, ""
}

// familiarityTerm awards a flat bonus when the driver knows the pickup area.
func familiarityTerm(c *domain.DriverCandidate) (float64, string) {
	if c.LocationFamiliarity {
		return familiarityBonus, "Familiar with area"
	}
	return 0, ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
