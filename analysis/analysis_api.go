package analysis

import (
	"encoding/json"
	"github.com/P4ST4S/session-sdk-demo-sub000/api_helper"
	"github.com/ztrue/tracerr"
)

type apiClient struct {
	api_helper.ApiClient
}

// The only field of the verdict envelope this SDK relies on is
// data.analysisResult.job_status.predictions[0].code.
type analyzeResponse struct {
	Data struct {
		AnalysisResult struct {
			JobStatus struct {
				Predictions []struct {
					Code string `json:"code"`
				} `json:"predictions"`
			} `json:"job_status"`
		} `json:"analysisResult"`
	} `json:"data"`
}

func (apiClient *apiClient) analyze(sessionId string, fields map[string]string, files []api_helper.FilePart) (string, error) {
	responseBody, err := apiClient.MakeMultipartRequest(
		"POST",
		"/"+sessionId+"/analysis",
		fields,
		files,
		nil,
		200,
	)
	if err != nil {
		return "", tracerr.Wrap(err)
	}

	var result analyzeResponse
	err = json.Unmarshal(responseBody, &result)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	predictions := result.Data.AnalysisResult.JobStatus.Predictions
	if len(predictions) == 0 {
		return "", nil
	}
	return predictions[0].Code, nil
}

type apiClientInterface interface {
	analyze(sessionId string, fields map[string]string, files []api_helper.FilePart) (string, error)
}
