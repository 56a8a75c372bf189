// Package coxfit fits Cox proportional hazards models to right-censored
// survival tables and reports hazard ratios, fit statistics and
// proportional-hazards diagnostics.
package coxfit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/kshedden/dstream/dstream"

	"github.com/brookluers/coxsim/utils"
)

const chunksize = 1024

// Dataset wraps the tabular survival data together with the categorical
// encodings produced during preprocessing.
type Dataset struct {
	Data dstream.Dstream

	// Level -> numeric code maps, populated by Clean
	GenderCodes    map[string]float64
	TreatmentCodes map[string]float64
}

// Load reads a survival data CSV file.  The file must have a header row
// containing every column of the data set schema; a missing file or a missing
// required column is reported as ErrMissingData.
func Load(path string) (*Dataset, error) {

	fid, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrMissingData, err)
	}

	if err := checkHeader(fid); err != nil {
		fid.Close()
		return nil, err
	}
	if _, err := fid.Seek(0, io.SeekStart); err != nil {
		fid.Close()
		return nil, err
	}
	defer fid.Close()

	da := dstream.FromCSV(fid).
		SetFloatVars(utils.FloatCols).
		SetStringVars(utils.StringCols).
		SetChunkSize(chunksize).
		HasHeader().
		Done()

	return &Dataset{Data: dstream.MemCopy(da)}, nil
}

// checkHeader confirms that every schema column appears in the file header.
func checkHeader(r io.Reader) error {

	head, err := csv.NewReader(r).Read()
	if err != nil {
		return fmt.Errorf("%w: cannot read header: %v", utils.ErrMissingData, err)
	}

	have := make(map[string]bool)
	for _, c := range head {
		have[c] = true
	}

	var cols []string
	cols = append(cols, utils.FloatCols...)
	cols = append(cols, utils.StringCols...)
	for _, c := range cols {
		if !have[c] {
			return fmt.Errorf("%w: required column %q not in file", utils.ErrMissingData, c)
		}
	}

	return nil
}

// Clean drops rows with missing values in any required column, then encodes
// the categorical columns as numeric codes in alphabetical level order.  The
// encoded columns are named gender_code and treatment_code.
func (ds *Dataset) Clean() {

	naf := func(x interface{}, keep []bool) bool {
		v := x.([]float64)
		for i := range v {
			if math.IsNaN(v[i]) {
				keep[i] = false
			}
		}
		return true
	}
	nas := func(x interface{}, keep []bool) bool {
		v := x.([]string)
		for i := range v {
			if v[i] == "" {
				keep[i] = false
			}
		}
		return true
	}

	fm := make(map[string]dstream.FilterFunc)
	for _, c := range utils.FloatCols {
		fm[c] = naf
	}
	for _, c := range utils.StringCols {
		fm[c] = nas
	}
	ds.Data.Reset()
	data := dstream.Filter(ds.Data, fm)
	data = dstream.MemCopy(data)

	ds.GenderCodes = levelCodes(data, utils.ColGender)
	ds.TreatmentCodes = levelCodes(data, utils.ColTreatment)

	data = encode(data, utils.ColGender, "gender_code", ds.GenderCodes)
	data = encode(data, utils.ColTreatment, "treatment_code", ds.TreatmentCodes)

	data.Reset()
	ds.Data = dstream.MemCopy(data)
}

// levelCodes maps the distinct values of a string column to numeric codes
// assigned in alphabetical order.
func levelCodes(data dstream.Dstream, col string) map[string]float64 {

	data.Reset()
	vals := dstream.GetCol(data, col).([]string)

	seen := make(map[string]bool)
	var levels []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)

	codes := make(map[string]float64, len(levels))
	for i, l := range levels {
		codes[l] = float64(i)
	}
	return codes
}

// encode appends a numeric column holding the code of each categorical value.
func encode(data dstream.Dstream, col, name string, codes map[string]float64) dstream.Dstream {

	f := func(v map[string]interface{}, x interface{}) {
		z := x.([]float64)
		s := v[col].([]string)
		for i := range s {
			z[i] = codes[s[i]]
		}
	}

	return dstream.Generate(data, name, f, "float64")
}

// colFor maps an external covariate name to the numeric column used for
// fitting.  Categorical covariates resolve to their encoded columns.
func (ds *Dataset) colFor(name string) string {
	switch name {
	case utils.ColGender:
		return "gender_code"
	case utils.ColTreatment:
		return "treatment_code"
	}
	return name
}

// NumObs returns the number of rows currently in the data set.
func (ds *Dataset) NumObs() int {
	ds.Data.Reset()
	return len(dstream.GetCol(ds.Data, utils.ColSurvivalTime).([]float64))
}
