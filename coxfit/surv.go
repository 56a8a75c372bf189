package coxfit

import (
	"fmt"
	"sort"

	"github.com/kshedden/dstream/dstream"
	"github.com/kshedden/duration"

	"github.com/brookluers/coxsim/utils"
)

// KMCurve is a Kaplan-Meier survival function estimate for one group.
type KMCurve struct {
	Label    string
	Time     []float64
	SurvProb []float64
}

// SurvCurves estimates a Kaplan-Meier survival curve for each level of the
// given categorical grouping column.  Curves are returned in alphabetical
// label order.
func SurvCurves(ds *Dataset, byCol string) ([]KMCurve, error) {

	found := false
	for _, c := range utils.StringCols {
		if c == byCol {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q is not a categorical column", utils.ErrInvalidArgument, byCol)
	}

	ds.Data.Reset()
	vals := dstream.GetCol(ds.Data, byCol).([]string)
	seen := make(map[string]bool)
	var levels []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)

	var curves []KMCurve
	for _, level := range levels {

		lv := level
		f := func(x interface{}, keep []bool) bool {
			v := x.([]string)
			for i := range v {
				if v[i] != lv {
					keep[i] = false
				}
			}
			return true
		}

		ds.Data.Reset()
		sub := dstream.Filter(ds.Data, map[string]dstream.FilterFunc{byCol: f})
		sub = dstream.MemCopy(sub)

		sf := duration.NewSurvfuncRight(sub, utils.ColSurvivalTime, utils.ColEvent).Done()

		curves = append(curves, KMCurve{
			Label:    level,
			Time:     sf.Time(),
			SurvProb: sf.SurvProb(),
		})
	}

	return curves, nil
}
