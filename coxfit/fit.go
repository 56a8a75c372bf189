package coxfit

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kshedden/dstream/dstream"
	"github.com/kshedden/dstream/formula"
	"github.com/kshedden/duration"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/brookluers/coxsim/utils"
)

// Ratio of smallest to largest singular value below which the design is
// treated as rank deficient.
const condTol = 1e-8

// Covariate holds the fitted quantities for one model term.
type Covariate struct {
	Name        string
	Coef        float64
	SE          float64
	Z           float64
	P           float64
	HazardRatio float64

	// 95% confidence interval for the hazard ratio
	LCL float64
	UCL float64
}

// Model is the result of fitting a proportional hazards regression.  It is
// read only after Fit returns.
type Model struct {
	Covariates  []Covariate
	NObs        int
	NEvents     int
	LogLike     float64
	AIC         float64
	Concordance float64

	// Per subject data retained for diagnostics and prediction
	time   []float64
	status []float64
	lp     []float64
	xcols  [][]float64
}

// Fit estimates a Cox proportional hazards model for the given duration and
// event columns, using the named covariates.  Categorical covariates must
// have been encoded by Clean.  A rank deficient design or a failed
// optimization is reported as ErrNonConvergence.
func Fit(ds *Dataset, durCol, eventCol string, covars []string) (*Model, error) {

	if len(covars) == 0 {
		return nil, fmt.Errorf("%w: no covariates given", utils.ErrInvalidArgument)
	}

	cols := make([]string, len(covars))
	for i, c := range covars {
		cols[i] = ds.colFor(c)
	}

	fml := strings.Join(cols, " + ")
	ds.Data.Reset()
	dx := formula.New(fml, ds.Data).Keep([]string{durCol, eventCol}).Done()
	da := dstream.MemCopy(dx)

	// Pull the working columns out of the design data.
	da.Reset()
	time := dstream.GetCol(da, durCol).([]float64)
	da.Reset()
	status := dstream.GetCol(da, eventCol).([]float64)
	xcols := make([][]float64, len(cols))
	for i, c := range cols {
		da.Reset()
		xcols[i] = dstream.GetCol(da, c).([]float64)
	}

	if len(time) == 0 {
		return nil, fmt.Errorf("%w: no rows remain after preprocessing", utils.ErrMissingData)
	}
	nev := 0
	for _, s := range status {
		if s == 1 {
			nev++
		}
	}
	if nev == 0 {
		return nil, fmt.Errorf("%w: no events in the data", utils.ErrInvalidArgument)
	}

	if err := checkRank(xcols); err != nil {
		return nil, err
	}

	opt := &optimize.Settings{GradientThreshold: 1e-5}

	da.Reset()
	md := duration.NewPHReg(da, durCol, eventCol).OptSettings(opt).Done()
	result, err := md.Fit()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrNonConvergence, err)
	}

	params := result.Params()
	se := result.StdErr()
	zs := result.ZScores()
	pv := result.PValues()

	// Pair each requested covariate with its fitted parameter by name
	// rather than by position.
	pos := make(map[string]int, len(params))
	for i, na := range result.Names() {
		pos[na] = i
	}

	m := &Model{
		NObs:    len(time),
		NEvents: nev,
		LogLike: result.LogLike(),
		time:    time,
		status:  status,
		xcols:   xcols,
	}

	for i, name := range covars {
		j, ok := pos[cols[i]]
		if !ok {
			return nil, fmt.Errorf("%w: no parameter estimated for %s",
				utils.ErrNonConvergence, name)
		}
		if !finite(params[j]) || !finite(se[j]) {
			return nil, fmt.Errorf("%w: non-finite parameter estimate for %s",
				utils.ErrNonConvergence, name)
		}
		m.Covariates = append(m.Covariates, Covariate{
			Name:        name,
			Coef:        params[j],
			SE:          se[j],
			Z:           zs[j],
			P:           pv[j],
			HazardRatio: math.Exp(params[j]),
			LCL:         math.Exp(params[j] - 1.96*se[j]),
			UCL:         math.Exp(params[j] + 1.96*se[j]),
		})
	}

	m.AIC = 2*float64(len(m.Covariates)) - 2*m.LogLike

	// Linear predictors from the raw design, used for the concordance
	// index, the baseline hazard and the Schoenfeld residuals.
	m.lp = make([]float64, len(time))
	for j := range m.lp {
		s := 0.0
		for k, c := range m.Covariates {
			s += c.Coef * xcols[k][j]
		}
		m.lp[j] = s
	}

	cc := duration.NewConcordance(time, status, m.lp).Done()
	m.Concordance = cc.Concordance(floats.Max(time))

	return m, nil
}

// checkRank reports ErrNonConvergence when the centered design matrix is
// numerically rank deficient, which happens with collinear covariates.
func checkRank(xcols [][]float64) error {

	n := len(xcols[0])
	k := len(xcols)
	xm := mat.NewDense(n, k, nil)
	for j, col := range xcols {
		mn := floats.Sum(col) / float64(n)
		for i, v := range col {
			xm.Set(i, j, v-mn)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(xm, mat.SVDNone) {
		return fmt.Errorf("%w: design matrix factorization failed", utils.ErrNonConvergence)
	}
	sv := svd.Values(nil)
	if sv[len(sv)-1] < condTol*sv[0] {
		return fmt.Errorf("%w: design matrix is rank deficient (collinear covariates)",
			utils.ErrNonConvergence)
	}

	return nil
}

// Summary renders the coefficient table and fit statistics.
func (m *Model) Summary() string {

	var b strings.Builder

	fmt.Fprintf(&b, "Cox proportional hazards regression\n")
	fmt.Fprintf(&b, "n=%d, events=%d (%.1f%%)\n\n", m.NObs, m.NEvents,
		100*float64(m.NEvents)/float64(m.NObs))

	fmt.Fprintf(&b, "%-14s %10s %10s %8s %8s %10s %10s %10s\n",
		"covariate", "coef", "se(coef)", "z", "p", "exp(coef)", "lower.95", "upper.95")
	for _, c := range m.Covariates {
		fmt.Fprintf(&b, "%-14s %10.4f %10.4f %8.3f %8.4f %10.4f %10.4f %10.4f\n",
			c.Name, c.Coef, c.SE, c.Z, c.P, c.HazardRatio, c.LCL, c.UCL)
	}

	fmt.Fprintf(&b, "\nLog-likelihood: %.3f   AIC: %.3f   Concordance: %.4f\n",
		m.LogLike, m.AIC, m.Concordance)

	return b.String()
}

// PredictSurvival returns survival probabilities at the given times for a
// covariate profile, using the Breslow baseline cumulative hazard.  The
// profile must supply a value for every model covariate, keyed by covariate
// name, with categorical values given as their numeric codes.
func (m *Model) PredictSurvival(profile map[string]float64, times []float64) ([]float64, error) {

	lpx := 0.0
	for _, c := range m.Covariates {
		v, ok := profile[c.Name]
		if !ok {
			return nil, fmt.Errorf("%w: profile is missing covariate %s",
				utils.ErrInvalidArgument, c.Name)
		}
		lpx += c.Coef * v
	}

	bt, bh := m.baselineCumHaz()

	probs := make([]float64, len(times))
	rr := math.Exp(lpx)
	for i, t := range times {
		// Cumulative hazard through the last event time <= t
		j := sort.SearchFloat64s(bt, t)
		if j == len(bt) || bt[j] > t {
			j--
		}
		h0 := 0.0
		if j >= 0 {
			h0 = bh[j]
		}
		probs[i] = math.Exp(-h0 * rr)
	}

	return probs, nil
}

// baselineCumHaz computes the Breslow estimate of the baseline cumulative
// hazard at each distinct event time.
func (m *Model) baselineCumHaz() (bt, bh []float64) {

	n := len(m.time)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return m.time[idx[a]] < m.time[idx[b]] })

	// riskW[i] is the sum of exp(lp) over subjects still at risk when the
	// i-th smallest time is reached.
	riskW := make([]float64, n+1)
	for i := n - 1; i >= 0; i-- {
		riskW[i] = riskW[i+1] + math.Exp(m.lp[idx[i]])
	}

	h := 0.0
	for i := 0; i < n; {
		t := m.time[idx[i]]
		d := 0.0
		j := i
		for ; j < n && m.time[idx[j]] == t; j++ {
			d += m.status[idx[j]]
		}
		if d > 0 {
			h += d / riskW[i]
			bt = append(bt, t)
			bh = append(bh, h)
		}
		i = j
	}

	return bt, bh
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
