// Package verdict maps backend verdict codes to the terminal step of the
// processing animation. The mapping is pure and its check order is part of
// the backend compatibility contract.
package verdict

import "strings"

// GenericErrorCode is the code substituted when the backend returns no
// prediction code at all.
const GenericErrorCode = "4"

// TotalSteps is the number of visible processing steps; reaching step
// TotalSteps means the document is fully conform.
const TotalSteps = 4

// Classify maps a verdict code to the step index at which the processing
// animation stops, in [0, TotalSteps]. An absent code is treated as the
// generic error code.
//
// Checks are evaluated in this exact order, first match wins: a code
// containing both '2' and '7' classifies as "not readable", not "not valid".
func Classify(code string) int {
	if code == "" {
		code = GenericErrorCode
	}
	switch {
	case code == "1.0":
		return 4 // fully conform
	case code == GenericErrorCode:
		return 0 // generic error
	case strings.Contains(code, "2"):
		return 1 // document not readable
	case strings.ContainsAny(code, "3458"):
		return 2 // document does not match user input
	case strings.Contains(code, "7"):
		return 3 // document not valid
	default:
		return 0
	}
}
