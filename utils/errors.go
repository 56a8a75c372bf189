package utils

import "errors"

// Error kinds surfaced by the generator and the regression driver.  Callers
// match them with errors.Is; none are retried.
var (
	// ErrInvalidArgument reports bad generation or fitting parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingData reports an absent input file or required column.
	ErrMissingData = errors.New("missing data")

	// ErrNonConvergence reports that the partial likelihood optimization
	// failed, typically because of collinear covariates.
	ErrNonConvergence = errors.New("model did not converge")
)
