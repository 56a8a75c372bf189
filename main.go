// Command coxsim simulates a right-censored survival data set, fits a Cox
// proportional hazards regression to it, and reports hazard ratios, a
// proportional hazards diagnostic, and example survival predictions.
//
// With no flags it generates the data file if absent, fits the standard
// covariate set and prints the coefficient table to stdout.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kshedden/dstream/dstream"
	"github.com/lmittmann/tint"
	"gonum.org/v1/gonum/stat"

	"github.com/brookluers/coxsim/coxfit"
	"github.com/brookluers/coxsim/simdata"
	"github.com/brookluers/coxsim/survplot"
	"github.com/brookluers/coxsim/utils"
)

var covariates = []string{
	utils.ColAge, utils.ColGender, utils.ColTreatment,
	utils.ColBiomarker1, utils.ColBiomarker2,
}

func run() error {

	var (
		dataPath string
		nrec     int
		seed     uint64
		pthresh  float64
		plots    bool
		outDir   string
	)
	flag.StringVar(&dataPath, "data", "sample_survival_data.csv", "survival data CSV file")
	flag.IntVar(&nrec, "n", 500, "number of records to simulate when generating")
	flag.Uint64Var(&seed, "seed", 42, "random seed for the generator")
	flag.Float64Var(&pthresh, "pthresh", 0.05, "significance threshold for the proportional hazards check")
	flag.BoolVar(&plots, "plots", false, "write figure PNGs")
	flag.StringVar(&outDir, "out", ".", "directory for generated files and figures")
	flag.Parse()

	if _, err := os.Stat(dataPath); errors.Is(err, os.ErrNotExist) {
		slog.Info("data file not found, generating", "path", dataPath, "n", nrec, "seed", seed)
		recs, err := simdata.Generate(simdata.DefaultConfig(nrec, seed))
		if err != nil {
			return err
		}
		if err := simdata.WriteCSV(recs, dataPath); err != nil {
			return err
		}
		if err := simdata.WriteMetadata(metadataPath(dataPath)); err != nil {
			return err
		}
	}

	ds, err := coxfit.Load(dataPath)
	if err != nil {
		return err
	}
	n0 := ds.NumObs()
	ds.Clean()
	slog.Info("data loaded", "rows", n0, "after_cleaning", ds.NumObs())
	describe(ds)

	model, err := coxfit.Fit(ds, utils.ColSurvivalTime, utils.ColEvent, covariates)
	if err != nil {
		return err
	}
	fmt.Println(model.Summary())

	checks, err := coxfit.CheckPH(model, pthresh)
	if err != nil {
		return err
	}
	fmt.Printf("Proportional hazards check (threshold %.2f)\n", pthresh)
	for _, c := range checks {
		verdict := "ok"
		if !c.OK {
			verdict = "VIOLATION"
		}
		fmt.Printf("%-14s chi2=%8.3f  p=%.4f  %s\n", c.Name, c.Stat, c.PValue, verdict)
	}
	fmt.Println()

	if err := predictExample(ds, model); err != nil {
		return err
	}

	if plots {
		if err := figures(ds, model, outDir); err != nil {
			return err
		}
	}

	return nil
}

// metadataPath derives the companion metadata file name from the data file
// path, so the pair always sits in the same directory.
func metadataPath(dataPath string) string {
	ext := filepath.Ext(dataPath)
	return strings.TrimSuffix(dataPath, ext) + "_metadata" + ext
}

// describe logs the mean and standard deviation of each numeric column.
func describe(ds *coxfit.Dataset) {
	for _, k := range utils.FloatCols {
		if k == utils.ColPatientID {
			continue
		}
		ds.Data.Reset()
		v := dstream.GetCol(ds.Data, k).([]float64)
		mn, sd := stat.MeanStdDev(v, nil)
		slog.Info("column", "name", k, "mean", mn, "sd", sd)
	}
}

// predictExample prints survival probabilities for a 65 year old female on
// treatment B.
func predictExample(ds *coxfit.Dataset, model *coxfit.Model) error {

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
		return err
	}

	fmt.Println("Predicted survival, 65 year old female on treatment B:")
	for i, t := range times {
		fmt.Printf("%6.0f days: %.4f\n", t, probs[i])
	}
	fmt.Println()

	return nil
}

func figures(ds *coxfit.Dataset, model *coxfit.Model, outDir string) error {

	fp := filepath.Join(outDir, "hazard_ratios.png")
	if err := survplot.HazardRatios(model, fp); err != nil {
		return err
	}
	slog.Info("wrote figure", "path", fp)

	for _, g := range []struct {
		col, title, fname string
	}{
		{utils.ColGender, "Kaplan-Meier curves by gender", "km_gender.png"},
		{utils.ColTreatment, "Kaplan-Meier curves by treatment", "km_treatment.png"},
	} {
		curves, err := coxfit.SurvCurves(ds, g.col)
		if err != nil {
			return err
		}
		fp := filepath.Join(outDir, g.fname)
		if err := survplot.KaplanMeier(curves, g.title, fp); err != nil {
			return err
		}
		slog.Info("wrote figure", "path", fp)
	}

	return nil
}

func main() {

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level: slog.LevelInfo,
		}),
	))

	if err := run(); err != nil {
		slog.Error("analysis failed", "err", err)
		os.Exit(1)
	}
}
