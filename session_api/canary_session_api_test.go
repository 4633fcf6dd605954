package session_api

import (
	"encoding/json"
	"github.com/ztrue/tracerr"
)

func newCanarySessionApiClient(client apiClientInterface) *canarySessionApiClient {
	return &canarySessionApiClient{Client: client, ToExecute: make(map[string]func(any) ([]byte, error)), Counter: make(map[string]int)}
}

type canarySessionApiClient struct {
	Client    apiClientInterface
	ToExecute map[string]func(request any) ([]byte, error)
	Counter   map[string]int
}

func (c *canarySessionApiClient) getSession(sessionId string) (*getSessionResponse, error) {
	c.Counter["getSession"] += 1
	if c.ToExecute["getSession"] != nil {
		res, err := c.ToExecute["getSession"](sessionId)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		var response getSessionResponse
		err = json.Unmarshal(res, &response)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		return &response, nil
	}
	return c.Client.getSession(sessionId)
}

func (c *canarySessionApiClient) patchSession(sessionId string, patch map[string]interface{}) error {
	c.Counter["patchSession"] += 1
	if c.ToExecute["patchSession"] != nil {
		_, err := c.ToExecute["patchSession"](patch)
		if err != nil {
			return tracerr.Wrap(err)
		}
		return nil
	}
	return c.Client.patchSession(sessionId, patch)
}
