// Package session_api talks to the session metadata backend: it resolves the
// session token handed over by the hosting page, fetches the workflow
// template describing which stages apply, and patches the user-entered
// identity and contact fields.
package session_api

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/api_helper"
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorInvalidSessionToken is returned when the session token is not a parseable JWT
	ErrorInvalidSessionToken = utils.NewVerifError("INVALID_SESSION_TOKEN", "session token is not a valid JWT")
	// ErrorSessionTokenNoSessionId is returned when the session token carries no session id claim
	ErrorSessionTokenNoSessionId = utils.NewVerifError("SESSION_TOKEN_NO_SESSION_ID", "session token carries no session id")
)

// ParseSessionToken extracts the session id from the JWT the hosting page
// mounts the widget with. The signature is issued and checked by the backend;
// the widget only needs the claim, so the parse is unverified.
func ParseSessionToken(token string) (string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", tracerr.Wrap(ErrorInvalidSessionToken.AddDetails(err.Error()))
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", tracerr.Wrap(ErrorInvalidSessionToken)
	}
	if sessionId, ok := claims["sessionId"].(string); ok && sessionId != "" {
		return sessionId, nil
	}
	// some backends issue the session id as the subject
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", tracerr.Wrap(ErrorSessionTokenNoSessionId)
}

// Client wraps the session metadata API.
type Client struct {
	apiClient apiClientInterface
	Logger    zerolog.Logger
}

func NewClient(apiUrl string, extraHeaders []api_helper.Header, logger zerolog.Logger) *Client {
	return &Client{
		apiClient: newApiClient(apiUrl, extraHeaders, logger),
		Logger:    logger,
	}
}

// GetTemplate fetches the workflow template for the session. When the backend
// has no template configured, it returns nil and the caller falls back to the
// default stage order.
func (client *Client) GetTemplate(sessionId string) (*SessionTemplate, error) {
	response, err := client.apiClient.getSession(sessionId)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if response.Data.Template == nil || len(response.Data.Template.Nodes) == 0 {
		client.Logger.Debug().Msg("No template configured for session, falling back to default stages")
		return nil, nil
	}
	return response.Data.Template, nil
}

// SaveUserInput patches the persisted identity fields on the backend.
func (client *Client) SaveUserInput(sessionId string, input common_models.IdentityInput) error {
	err := client.apiClient.patchSession(sessionId, map[string]interface{}{"userInput": input})
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

// SaveContactInfo patches the persisted contact fields on the backend.
func (client *Client) SaveContactInfo(sessionId string, info common_models.ContactInfo) error {
	err := client.apiClient.patchSession(sessionId, map[string]interface{}{"contactInfo": info})
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}
