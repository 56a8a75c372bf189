package utils

// Column names of the survival data set.
const (
	ColPatientID    = "patient_id"
	ColSurvivalTime = "survival_time"
	ColEvent        = "event"
	ColAge          = "age"
	ColGender       = "gender"
	ColTreatment    = "treatment"
	ColBiomarker1   = "biomarker1"
	ColBiomarker2   = "biomarker2"
)

// FloatCols lists the numeric columns of the data set, in file order.
var FloatCols = []string{
	ColPatientID, ColSurvivalTime, ColEvent, ColAge, ColBiomarker1, ColBiomarker2,
}

// StringCols lists the categorical columns of the data set, in file order.
var StringCols = []string{ColGender, ColTreatment}

// Prec describes one simulated patient in the data set.
type Prec struct {

	// Unique identifier, assigned sequentially starting from 1
	PatientID int

	// Days until the event or until censoring
	SurvivalTime float64

	// Indicator that the event was observed (false means right censored)
	Event bool

	// Age in years at entry
	Age int

	// Sex of the patient
	Gender string

	// Treatment arm label
	Treatment string

	// Continuous biomarker measurements
	Biomarker1 float64
	Biomarker2 float64
}
