package coxfit

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kshedden/dstream/dstream"

	"github.com/brookluers/coxsim/simdata"
	"github.com/brookluers/coxsim/utils"
)

var stdCovars = []string{
	utils.ColAge, utils.ColGender, utils.ColTreatment,
	utils.ColBiomarker1, utils.ColBiomarker2,
}

// writeData generates a data set and stores it in a temporary file.
func writeData(t *testing.T, cfg simdata.Config) string {
	t.Helper()

	recs, err := simdata.Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return writeRecs(t, recs)
}

func writeRecs(t *testing.T, recs []utils.Prec) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "surv.csv")
	if err := simdata.WriteCSV(recs, path); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	return path
}

func loadClean(t *testing.T, path string) *Dataset {
	t.Helper()

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ds.Clean()
	return ds
}

func TestLoadMissingFile(t *testing.T) {

	_, err := Load(filepath.Join(t.TempDir(), "nothing.csv"))
	if !errors.Is(err, utils.ErrMissingData) {
		t.Errorf("expected ErrMissingData, got %v", err)
	}
}

func TestLoadMissingColumn(t *testing.T) {

	path := filepath.Join(t.TempDir(), "bad.csv")
	body := "patient_id,survival_time,age,gender,treatment,biomarker1,biomarker2\n" +
		"1,100.5,60,Male,A,50.1,99.2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, utils.ErrMissingData) {
		t.Errorf("expected ErrMissingData for absent event column, got %v", err)
	}
}

func TestCleanDropsMissing(t *testing.T) {

	recs, err := simdata.Generate(simdata.DefaultConfig(50, 11))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Plant one missing categorical value and one missing numeric value.
	recs[4].Gender = ""
	recs[9].Biomarker1 = math.NaN()

	ds := loadClean(t, writeRecs(t, recs))

	if n := ds.NumObs(); n != 48 {
		t.Errorf("expected 48 rows after cleaning, got %d", n)
	}

	ds.Data.Reset()
	b1 := dstream.GetCol(ds.Data, utils.ColBiomarker1).([]float64)
	for i, v := range b1 {
		if math.IsNaN(v) {
			t.Errorf("NaN remains in biomarker1 at row %d", i)
		}
	}
	ds.Data.Reset()
	g := dstream.GetCol(ds.Data, utils.ColGender).([]string)
	for i, v := range g {
		if v == "" {
			t.Errorf("empty gender remains at row %d", i)
		}
	}
}

func TestLabelEncoding(t *testing.T) {

	ds := loadClean(t, writeData(t, simdata.DefaultConfig(200, 5)))

	wantG := map[string]float64{"Female": 0, "Male": 1}
	for k, v := range wantG {
		if ds.GenderCodes[k] != v {
			t.Errorf("gender code for %s: got %v, want %v", k, ds.GenderCodes[k], v)
		}
	}

	wantT := map[string]float64{"A": 0, "B": 1, "C": 2}
	for k, v := range wantT {
		if ds.TreatmentCodes[k] != v {
			t.Errorf("treatment code for %s: got %v, want %v", k, ds.TreatmentCodes[k], v)
		}
	}

	// The encoded columns carry the codes row by row.
	ds.Data.Reset()
	labels := dstream.GetCol(ds.Data, utils.ColTreatment).([]string)
	ds.Data.Reset()
	codes := dstream.GetCol(ds.Data, "treatment_code").([]float64)
	for i := range labels {
		if codes[i] != wantT[labels[i]] {
			t.Errorf("row %d: treatment %q encoded as %v", i, labels[i], codes[i])
		}
	}
}

func TestFitRecoversPlantedEffect(t *testing.T) {

	// Two arms with a pure multiplicative hazard ratio of 0.65 for B vs A
	// and no other planted effects.
	cfg := simdata.DefaultConfig(1000, 13)
	cfg.TreatmentLevels = []string{"A", "B"}
	cfg.TreatmentHazard = []float64{1.0, 0.65}
	cfg.TreatmentProb = []float64{0.5, 0.5}
	cfg.AgeSlope = 0
	cfg.Bio1Slope = 0

	ds := loadClean(t, writeData(t, cfg))

	model, err := Fit(ds, utils.ColSurvivalTime, utils.ColEvent, []string{utils.ColTreatment})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	hr := model.Covariates[0].HazardRatio
	if math.Abs(hr-0.65) > 0.15 {
		t.Errorf("treatment hazard ratio %0.4f not within 0.15 of 0.65", hr)
	}
	t.Logf("treatment: HR=%.4f [%.4f, %.4f] p=%.4f",
		hr, model.Covariates[0].LCL, model.Covariates[0].UCL, model.Covariates[0].P)
}

func TestFitFullModel(t *testing.T) {

	ds := loadClean(t, writeData(t, simdata.DefaultConfig(500, 42)))

	model, err := Fit(ds, utils.ColSurvivalTime, utils.ColEvent, stdCovars)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if len(model.Covariates) != len(stdCovars) {
		t.Fatalf("expected %d covariates, got %d", len(stdCovars), len(model.Covariates))
	}
	for i, c := range model.Covariates {
		if c.Name != stdCovars[i] {
			t.Errorf("covariate %d: got %s, want %s", i, c.Name, stdCovars[i])
		}
		if c.SE <= 0 {
			t.Errorf("%s: standard error must be positive, got %v", c.Name, c.SE)
		}
		if c.P < 0 || c.P > 1 {
			t.Errorf("%s: p-value out of range: %v", c.Name, c.P)
		}
		if c.LCL > c.HazardRatio || c.UCL < c.HazardRatio {
			t.Errorf("%s: HR %v outside its own interval [%v, %v]", c.Name, c.HazardRatio, c.LCL, c.UCL)
		}
	}

	if model.Concordance < 0.5 || model.Concordance > 1 {
		t.Errorf("concordance out of range: %v", model.Concordance)
	}
	if model.AIC != 2*float64(len(stdCovars))-2*model.LogLike {
		t.Errorf("AIC inconsistent with log likelihood")
	}

	// Age increases risk, treatment B is protective relative to the code
	// ordering, so the planted directions should show up.
	for _, c := range model.Covariates {
		if c.Name == utils.ColAge && c.HazardRatio <= 1 {
			t.Errorf("age should be a risk factor, HR=%v", c.HazardRatio)
		}
		if c.Name == utils.ColBiomarker1 && c.HazardRatio >= 1 {
			t.Errorf("biomarker1 should be protective, HR=%v", c.HazardRatio)
		}
	}
}

func TestFitCollinear(t *testing.T) {

	recs, err := simdata.Generate(simdata.DefaultConfig(200, 21))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := range recs {
		recs[i].Biomarker2 = 2 * recs[i].Biomarker1
	}

	ds := loadClean(t, writeRecs(t, recs))

	_, err = Fit(ds, utils.ColSurvivalTime, utils.ColEvent,
		[]string{utils.ColBiomarker1, utils.ColBiomarker2})
	if !errors.Is(err, utils.ErrNonConvergence) {
		t.Errorf("expected ErrNonConvergence for collinear covariates, got %v", err)
	}
}

func TestFitAllRowsMissing(t *testing.T) {

	recs, err := simdata.Generate(simdata.DefaultConfig(10, 17))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := range recs {
		recs[i].Gender = ""
	}

	ds := loadClean(t, writeRecs(t, recs))
	if n := ds.NumObs(); n != 0 {
		t.Fatalf("expected 0 rows after cleaning, got %d", n)
	}

	_, err = Fit(ds, utils.ColSurvivalTime, utils.ColEvent, []string{utils.ColAge})
	if !errors.Is(err, utils.ErrMissingData) {
		t.Errorf("expected ErrMissingData for an empty table, got %v", err)
	}
}

func TestFitNoEvents(t *testing.T) {

	recs, err := simdata.Generate(simdata.DefaultConfig(30, 19))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := range recs {
		recs[i].Event = false
	}

	ds := loadClean(t, writeRecs(t, recs))

	_, err = Fit(ds, utils.ColSurvivalTime, utils.ColEvent, []string{utils.ColAge})
	if !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for a table with no events, got %v", err)
	}
}

func TestFitNoCovariates(t *testing.T) {

	ds := loadClean(t, writeData(t, simdata.DefaultConfig(50, 2)))

	_, err := Fit(ds, utils.ColSurvivalTime, utils.ColEvent, nil)
	if !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSummary(t *testing.T) {

	ds := loadClean(t, writeData(t, simdata.DefaultConfig(300, 42)))

	model, err := Fit(ds, utils.ColSurvivalTime, utils.ColEvent, stdCovars)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	s := model.Summary()
	for _, want := range append([]string{"exp(coef)", "Concordance", "Log-likelihood"}, stdCovars...) {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q", want)
		}
	}
	t.Logf("\n%s", s)
}

func TestPredictSurvival(t *testing.T) {

	ds := loadClean(t, writeData(t, simdata.DefaultConfig(400, 42)))

	model, err := Fit(ds, utils.ColSurvivalTime, utils.ColEvent, stdCovars)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	profile := map[string]float64{
		utils.ColAge:        65,
		utils.ColGender:     ds.GenderCodes["Female"],
		utils.ColTreatment:  ds.TreatmentCodes["B"],
		utils.ColBiomarker1: 55,
		utils.ColBiomarker2: 110,
	}
	times := []float64{365, 730, 1095, 1460}

	probs, err := model.PredictSurvival(profile, times)
	if err != nil {
		t.Fatalf("PredictSurvival: %v", err)
	}

	for i, p := range probs {
		if p < 0 || p > 1 {
			t.Errorf("survival probability out of range at %v days: %v", times[i], p)
		}
		if i > 0 && p > probs[i-1] {
			t.Errorf("survival must be non-increasing: S(%v)=%v > S(%v)=%v",
				times[i], p, times[i-1], probs[i-1])
		}
	}

	// Missing covariate in the profile
	delete(profile, utils.ColAge)
	if _, err := model.PredictSurvival(profile, times); !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for incomplete profile, got %v", err)
	}
}

func TestCheckPH(t *testing.T) {

	ds := loadClean(t, writeData(t, simdata.DefaultConfig(400, 42)))

	model, err := Fit(ds, utils.ColSurvivalTime, utils.ColEvent, stdCovars)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	checks, err := CheckPH(model, 0.05)
	if err != nil {
		t.Fatalf("CheckPH: %v", err)
	}

	if len(checks) != len(stdCovars) {
		t.Fatalf("expected %d checks, got %d", len(stdCovars), len(checks))
	}
	for _, c := range checks {
		if c.PValue < 0 || c.PValue > 1 {
			t.Errorf("%s: p-value out of range: %v", c.Name, c.PValue)
		}
		if c.Stat < 0 {
			t.Errorf("%s: negative test statistic: %v", c.Name, c.Stat)
		}
		if c.OK != (c.PValue > 0.05) {
			t.Errorf("%s: OK flag inconsistent with p-value %v", c.Name, c.PValue)
		}
		t.Logf("%-14s chi2=%8.3f p=%.4f", c.Name, c.Stat, c.PValue)
	}

	if _, err := CheckPH(model, 0); !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for threshold 0, got %v", err)
	}
}

func TestSurvCurves(t *testing.T) {

	ds := loadClean(t, writeData(t, simdata.DefaultConfig(300, 42)))

	curves, err := SurvCurves(ds, utils.ColTreatment)
	if err != nil {
		t.Fatalf("SurvCurves: %v", err)
	}

	if len(curves) != 3 {
		t.Fatalf("expected 3 treatment curves, got %d", len(curves))
	}
	want := []string{"A", "B", "C"}
	for i, c := range curves {
		if c.Label != want[i] {
			t.Errorf("curve %d: got label %s, want %s", i, c.Label, want[i])
		}
		if len(c.Time) == 0 || len(c.Time) != len(c.SurvProb) {
			t.Fatalf("curve %s: malformed time/probability arrays", c.Label)
		}
		for j, p := range c.SurvProb {
			if p < 0 || p > 1 {
				t.Errorf("curve %s: probability out of range: %v", c.Label, p)
			}
			if j > 0 && p > c.SurvProb[j-1] {
				t.Errorf("curve %s: survival must be non-increasing", c.Label)
			}
		}
	}

	if _, err := SurvCurves(ds, utils.ColAge); !errors.Is(err, utils.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for a numeric grouping column, got %v", err)
	}
}
