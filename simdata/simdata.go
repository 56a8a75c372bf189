// Package simdata generates synthetic right-censored survival data with a
// planted regression signal, for exercising the Cox model fitting pipeline.
package simdata

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/brookluers/coxsim/utils"
)

// Config holds the simulation parameters.  The defaults plant a strong
// protective treatment effect, a positive age effect and a protective
// biomarker1 effect, so that a correctly fitted model has something to find.
type Config struct {

	// Number of records to generate
	N int

	// Seed for the random source
	Seed uint64

	// Baseline hazard rate per day
	BaselineHazard float64

	// Treatment arm labels and the hazard multiplier for each arm
	TreatmentLevels []string
	TreatmentHazard []float64

	// Sampling probabilities for the treatment arms (must sum to 1)
	TreatmentProb []float64

	// Probability that a patient is male
	MaleProb float64

	// Slope of the multiplicative age effect around age 50
	AgeSlope float64

	// Slope of the multiplicative biomarker1 effect around 50
	Bio1Slope float64

	// Censoring times are uniform on [CensorLo, CensorHi]
	CensorLo float64
	CensorHi float64

	// Observation window in days; times are truncated here
	Horizon float64
}

// DefaultConfig returns the standard simulation setup: three treatment arms
// with hazard multipliers 0.65 (A), 0.35 (B) and 1.0 (C, reference), ages
// uniform on 30-80, and roughly 30% censoring.
func DefaultConfig(n int, seed uint64) Config {
	return Config{
		N:               n,
		Seed:            seed,
		BaselineHazard:  0.015,
		TreatmentLevels: []string{"A", "B", "C"},
		TreatmentHazard: []float64{0.65, 0.35, 1.0},
		TreatmentProb:   []float64{0.35, 0.35, 0.30},
		MaleProb:        0.55,
		AgeSlope:        1.2,
		Bio1Slope:       0.8,
		CensorLo:        365,
		CensorHi:        1825,
		Horizon:         1825,
	}
}

// hazard returns the event rate for one patient.  Effects are multiplicative
// on the baseline; the biomarker multiplier is floored so the rate stays
// positive.
func (c *Config) hazard(age int, arm int, b1 float64) float64 {
	h := c.BaselineHazard * c.TreatmentHazard[arm]
	h *= 1 + (float64(age)-50)/50*c.AgeSlope
	be := 1 - (b1-50)/100*c.Bio1Slope
	if be < 0.3 {
		be = 0.3
	}
	return h * be
}

// validate rejects configurations that cannot produce a valid table.
func (c *Config) validate() error {

	if c.N <= 0 {
		return fmt.Errorf("%w: record count must be positive, got %d", utils.ErrInvalidArgument, c.N)
	}
	if len(c.TreatmentLevels) != len(c.TreatmentHazard) ||
		len(c.TreatmentLevels) != len(c.TreatmentProb) {
		return fmt.Errorf("%w: treatment levels, hazards and probabilities must have equal length",
			utils.ErrInvalidArgument)
	}
	if c.BaselineHazard <= 0 {
		return fmt.Errorf("%w: baseline hazard must be positive, got %v",
			utils.ErrInvalidArgument, c.BaselineHazard)
	}
	for i, h := range c.TreatmentHazard {
		if h <= 0 {
			return fmt.Errorf("%w: hazard multiplier for arm %s must be positive, got %v",
				utils.ErrInvalidArgument, c.TreatmentLevels[i], h)
		}
	}
	psum := 0.0
	for i, p := range c.TreatmentProb {
		if p < 0 {
			return fmt.Errorf("%w: negative probability for arm %s",
				utils.ErrInvalidArgument, c.TreatmentLevels[i])
		}
		psum += p
	}
	if math.Abs(psum-1) > 1e-6 {
		return fmt.Errorf("%w: treatment probabilities sum to %v, want 1", utils.ErrInvalidArgument, psum)
	}
	if c.CensorLo < 0 || c.CensorHi <= c.CensorLo {
		return fmt.Errorf("%w: censoring window [%v, %v] is not valid",
			utils.ErrInvalidArgument, c.CensorLo, c.CensorHi)
	}

	return nil
}

// Generate produces a complete patient table from the given configuration.
// Records get sequential ids 1..N.  The same configuration always yields the
// same table.
func Generate(cfg Config) ([]utils.Prec, error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	src := rand.NewSource(cfg.Seed)
	rng := rand.New(src)

	bio1 := distuv.Normal{Mu: 50, Sigma: 15, Src: src}
	bio2 := distuv.Normal{Mu: 100, Sigma: 25, Src: src}
	cens := distuv.Uniform{Min: cfg.CensorLo, Max: cfg.CensorHi, Src: src}

	recs := make([]utils.Prec, cfg.N)

	for i := range recs {

		age := 30 + rng.Intn(51)

		gender := "Female"
		if rng.Float64() < cfg.MaleProb {
			gender = "Male"
		}

		arm := sampleArm(rng, cfg.TreatmentProb)

		b1 := round2(bio1.Rand())
		b2 := round2(bio2.Rand())

		h := cfg.hazard(age, arm, b1)
		if h <= 0 {
			return nil, fmt.Errorf("%w: effect slopes produce a non-positive hazard at age %d",
				utils.ErrInvalidArgument, age)
		}

		et := distuv.Exponential{Rate: h, Src: src}.Rand()
		if et > cfg.Horizon {
			et = cfg.Horizon
		}
		ct := cens.Rand()

		event := et <= ct
		obs := et
		if !event {
			obs = ct
		}

		recs[i] = utils.Prec{
			PatientID:    i + 1,
			SurvivalTime: round2(obs),
			Event:        event,
			Age:          age,
			Gender:       gender,
			Treatment:    cfg.TreatmentLevels[arm],
			Biomarker1:   b1,
			Biomarker2:   b2,
		}
	}

	return recs, nil
}

// sampleArm draws a treatment arm index according to the given probabilities.
func sampleArm(rng *rand.Rand, prob []float64) int {
	u := rng.Float64()
	c := 0.0
	for i, p := range prob {
		c += p
		if u < c {
			return i
		}
	}
	return len(prob) - 1
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
