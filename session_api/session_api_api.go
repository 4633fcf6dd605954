package session_api

import (
	"encoding/json"
	"github.com/P4ST4S/session-sdk-demo-sub000/api_helper"
	"github.com/rs/zerolog"
	"github.com/ztrue/tracerr"
)

type apiClient struct {
	api_helper.ApiClient
}

func newApiClient(apiUrl string, extraHeaders []api_helper.Header, logger zerolog.Logger) *apiClient {
	return &apiClient{ApiClient: *api_helper.NewApiClient(apiUrl, extraHeaders, logger)}
}

// TemplateNode is one entry of the ordered stage list in the workflow
// template. Document nodes carry the category and the active option ids.
type TemplateNode struct {
	Type     string   `json:"type"`
	Category string   `json:"category,omitempty"`
	Options  []string `json:"options,omitempty"`
}

type SessionTemplate struct {
	Nodes []TemplateNode `json:"nodes"`
}

type getSessionResponse struct {
	Data struct {
		Template *SessionTemplate `json:"template"`
	} `json:"data"`
}

func (apiClient *apiClient) getSession(sessionId string) (*getSessionResponse, error) {
	responseBody, err := apiClient.MakeRequest(
		"GET",
		"/"+sessionId,
		nil,
		nil,
		200,
	)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	var result getSessionResponse
	err = json.Unmarshal(responseBody, &result)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &result, nil
}

func (apiClient *apiClient) patchSession(sessionId string, patch map[string]interface{}) error {
	requestBody, err := json.Marshal(patch)
	if err != nil {
		return tracerr.Wrap(err)
	}

	_, err = apiClient.MakeRequest(
		"PATCH",
		"/"+sessionId,
		requestBody,
		nil,
		200,
	)
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

type apiClientInterface interface {
	getSession(sessionId string) (*getSessionResponse, error)
	patchSession(sessionId string, patch map[string]interface{}) error
}
