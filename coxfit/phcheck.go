package coxfit

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/brookluers/coxsim/utils"
)

// PHCheck is the proportional hazards test for one covariate.  The test
// correlates the covariate's Schoenfeld residuals with the rank order of the
// event times; a hazard ratio that drifts over time produces a nonzero
// correlation.
type PHCheck struct {
	Name string

	// Correlation between the residuals and event time rank
	Corr float64

	// Chi-squared test statistic with one degree of freedom
	Stat float64

	PValue float64

	// True when there is no evidence against proportionality at the
	// chosen significance threshold
	OK bool
}

// CheckPH tests the proportional hazards assumption for every covariate of
// the fitted model at the given significance threshold.
func CheckPH(m *Model, threshold float64) ([]PHCheck, error) {

	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("%w: significance threshold must be in (0,1), got %v",
			utils.ErrInvalidArgument, threshold)
	}
	if m.NEvents < 2 {
		return nil, fmt.Errorf("%w: need at least two events for the proportional hazards test",
			utils.ErrInvalidArgument)
	}

	resid := m.schoenfeld()
	d := len(resid[0])

	// Event time ranks; resid rows are already in event time order.
	rk := make([]float64, d)
	for i := range rk {
		rk[i] = float64(i + 1)
	}

	chi2 := distuv.ChiSquared{K: 1}

	checks := make([]PHCheck, len(m.Covariates))
	for k, c := range m.Covariates {
		r := stat.Correlation(rk, resid[k], nil)
		if math.IsNaN(r) {
			// Constant residuals carry no information about drift
			r = 0
		}
		s := float64(d) * r * r
		p := chi2.Survival(s)
		checks[k] = PHCheck{
			Name:   c.Name,
			Corr:   r,
			Stat:   s,
			PValue: p,
			OK:     p > threshold,
		}
	}

	return checks, nil
}

// schoenfeld computes the Schoenfeld residuals for each covariate, one value
// per event, ordered by event time.  The residual at an event is the
// covariate value of the subject experiencing the event minus the risk set
// average weighted by exp(lp).
func (m *Model) schoenfeld() [][]float64 {

	n := len(m.time)
	nc := len(m.xcols)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return m.time[idx[a]] > m.time[idx[b]] })

	resid := make([][]float64, nc)

	// Walk from the largest time down, growing the risk set, and emit
	// residuals for the events at each distinct time once every subject
	// with that time has been added.
	sumW := 0.0
	sumWX := make([]float64, nc)

	type ev struct {
		t float64
		x []float64
	}
	var events []ev

	for i := 0; i < n; {
		t := m.time[idx[i]]
		j := i
		for ; j < n && m.time[idx[j]] == t; j++ {
			w := math.Exp(m.lp[idx[j]])
			sumW += w
			for k := 0; k < nc; k++ {
				sumWX[k] += w * m.xcols[k][idx[j]]
			}
		}
		for q := i; q < j; q++ {
			if m.status[idx[q]] != 1 {
				continue
			}
			x := make([]float64, nc)
			for k := 0; k < nc; k++ {
				x[k] = m.xcols[k][idx[q]] - sumWX[k]/sumW
			}
			events = append(events, ev{t, x})
		}
		i = j
	}

	// Events were collected in descending time order; flip to ascending.
	for k := 0; k < nc; k++ {
		resid[k] = make([]float64, len(events))
		for i := range events {
			resid[k][len(events)-1-i] = events[i].x[k]
		}
	}

	return resid
}
