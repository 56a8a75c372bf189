package simdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/brookluers/coxsim/utils"
)

// header is the column order of the output file, matching the documented
// data set schema.
var header = []string{
	utils.ColPatientID, utils.ColSurvivalTime, utils.ColEvent, utils.ColAge,
	utils.ColGender, utils.ColTreatment, utils.ColBiomarker1, utils.ColBiomarker2,
}

// WriteCSV stores the patient table at the given path, with a header row and
// the event flag encoded as 0/1.
func WriteCSV(recs []utils.Prec, path string) error {

	fid, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fid.Close()

	w := csv.NewWriter(fid)

	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range recs {
		ev := "0"
		if r.Event {
			ev = "1"
		}
		row := []string{
			strconv.Itoa(r.PatientID),
			strconv.FormatFloat(r.SurvivalTime, 'f', 2, 64),
			ev,
			strconv.Itoa(r.Age),
			r.Gender,
			r.Treatment,
			strconv.FormatFloat(r.Biomarker1, 'f', 2, 64),
			strconv.FormatFloat(r.Biomarker2, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// WriteMetadata stores a companion file describing each column.  It documents
// the data set for readers and is not consumed by the fitting code.
func WriteMetadata(path string) error {

	fid, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fid.Close()

	w := csv.NewWriter(fid)

	rows := [][]string{
		{"column", "type", "units", "range", "description"},
		{utils.ColPatientID, "integer", "", "1..N", "unique sequential patient identifier"},
		{utils.ColSurvivalTime, "float", "days", "0..1825", "days until event or censoring"},
		{utils.ColEvent, "integer", "", "0/1", "1 if the event was observed, 0 if censored"},
		{utils.ColAge, "integer", "years", "30..80", "age at study entry"},
		{utils.ColGender, "categorical", "", "Male/Female", "sex of the patient"},
		{utils.ColTreatment, "categorical", "", "A/B/C", "treatment arm"},
		{utils.ColBiomarker1, "float", "ng/mL", "approx N(50,15)", "baseline biomarker, protective at high values"},
		{utils.ColBiomarker2, "float", "ng/mL", "approx N(100,25)", "baseline biomarker, no planted effect"},
	}

	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}
