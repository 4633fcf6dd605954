package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ztrue/tracerr"
)

// VerifError is the error type used for all named errors of this SDK.
// Errors compare with errors.Is by Code only, so a returned error can carry
// instance-specific Details and still match its registered value.
type VerifError struct {
	Code        string
	Description string
	Details     string
}

var knownErrors = Set[string]{}

func NewVerifError(code string, description string) VerifError {
	if knownErrors.Has(code) {
		panic("Duplicate error: " + code)
	}
	knownErrors.Add(code)
	return VerifError{
		Code:        code,
		Description: description,
	}
}

func (err VerifError) Error() string {
	var text = err.Code
	if err.Description != "" {
		text = text + " - " + err.Description
	}
	if err.Details != "" {
		text = text + " : " + err.Details
	}
	return text
}

func (err VerifError) Is(target error) bool {
	var verifErrorTarget VerifError
	if errors.As(target, &verifErrorTarget) {
		return verifErrorTarget.Code == err.Code
	} else {
		return false
	}
}

func (err VerifError) AddDetails(details string) VerifError {
	if err.Details != "" {
		panic("Cannot re-add details to an error")
	}
	newErr := err
	newErr.Details = details
	return newErr
}

type APIError struct {
	Status  int
	Url     string
	Method  string
	Code    string
	Id      string
	Details string
	Raw     string
}

func (err APIError) Error() string {
	s := fmt.Sprintf("API Error: status: %d", err.Status)
	if err.Code != "" {
		s += "; code: " + err.Code
	}
	if err.Id != "" {
		s += "; id: " + err.Id
	}
	if err.Details != "" {
		s += "; details: " + err.Details
	}
	if err.Url != "" {
		s += "; URL: " + err.Url
	}
	if err.Method != "" {
		s += "; Method: " + err.Method
	}
	if err.Raw != "" {
		s += "; raw: " + err.Raw
	}
	return s
}

func (err APIError) Is(target error) bool {
	var apiErrorTarget APIError
	if errors.As(target, &apiErrorTarget) {
		return apiErrorTarget.Status == err.Status && apiErrorTarget.Code == err.Code
	} else {
		return false
	}
}

// SerializableError is the flattened error shape handed to the hosting
// context when the widget reports a failure.
type SerializableError struct {
	Status      int    `json:"status"`
	Code        string `json:"code"`
	Id          string `json:"id"`
	Description string `json:"description"`
	Details     string `json:"details"`
	Raw         string `json:"raw"`
	Stack       string `json:"stack"`
}

func (e SerializableError) Error() string {
	res, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("{\"code\": \"SERIALIZATION_ERROR\": \"details\": \"%s\"}", err)
	}
	return string(res)
}

func ToSerializableError(err error) *SerializableError {
	if err == nil {
		return nil
	}
	var apiError APIError
	if errors.As(err, &apiError) {
		return &SerializableError{
			Status:  apiError.Status,
			Code:    apiError.Code,
			Id:      apiError.Id,
			Details: fmt.Sprintf("%s; %s on %s", apiError.Details, apiError.Method, apiError.Url),
			Raw:     apiError.Raw,
			Stack:   tracerr.Sprint(err),
		}
	}
	var verifError VerifError
	if errors.As(err, &verifError) {
		return &SerializableError{
			Code:        verifError.Code,
			Id:          "GOSDK_" + verifError.Code,
			Description: verifError.Description,
			Details:     verifError.Details,
			Stack:       tracerr.Sprint(err),
		}
	}
	return &SerializableError{
		Code:    "OTHER_ERROR",
		Id:      "GOSDK_OTHER_ERROR",
		Details: err.Error(),
		Stack:   tracerr.Sprint(err),
	}
}
