package api_helper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/rs/zerolog"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

type ApiClient struct {
	client       *http.Client
	ApiURL       string
	ExtraHeaders []Header
	Logger       zerolog.Logger
}

type serverError struct {
	Code   string `json:"error_code"`
	Id     string `json:"error_id"`
	Detail string `json:"detail"`
}

type Header struct {
	Name  string
	Value string
}

// FilePart is one binary part of a multipart request.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

func NewApiClient(apiUrl string, extraHeaders []Header, logger zerolog.Logger) *ApiClient {
	var url string
	if strings.HasSuffix(apiUrl, "/") {
		url = apiUrl[:len(apiUrl)-1]
	} else {
		url = apiUrl
	}

	return &ApiClient{
		client:       &http.Client{},
		ApiURL:       url,
		ExtraHeaders: extraHeaders,
		Logger:       logger,
	}
}

func (apiClient *ApiClient) MakeRequest(method string, url string, requestBody []byte, headers []Header, expectedStatusCode int) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		bodyReader = bytes.NewBuffer(requestBody)
	}
	contentTypeHeaders := []Header{{Name: "Content-Type", Value: "application/json"}}
	return apiClient.doRequest(method, url, bodyReader, append(contentTypeHeaders, headers...), expectedStatusCode)
}

// MakeMultipartRequest sends a multipart/form-data request made of plain
// string fields plus binary file parts.
func (apiClient *ApiClient) MakeMultipartRequest(method string, url string, fields map[string]string, files []FilePart, headers []Header, expectedStatusCode int) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		err := writer.WriteField(name, value)
		if err != nil {
			return nil, utils.APIError{Status: 0, Code: "REQUEST_ERROR", Details: err.Error(), Method: method, Url: apiClient.ApiURL + url}
		}
	}
	for _, file := range files {
		partWriter, err := writer.CreatePart(map[string][]string{
			"Content-Disposition": {fmt.Sprintf(`form-data; name="%s"; filename="%s"`, file.FieldName, file.FileName)},
			"Content-Type":        {file.ContentType},
		})
		if err != nil {
			return nil, utils.APIError{Status: 0, Code: "REQUEST_ERROR", Details: err.Error(), Method: method, Url: apiClient.ApiURL + url}
		}
		_, err = partWriter.Write(file.Data)
		if err != nil {
			return nil, utils.APIError{Status: 0, Code: "REQUEST_ERROR", Details: err.Error(), Method: method, Url: apiClient.ApiURL + url}
		}
	}
	err := writer.Close()
	if err != nil {
		return nil, utils.APIError{Status: 0, Code: "REQUEST_ERROR", Details: err.Error(), Method: method, Url: apiClient.ApiURL + url}
	}

	contentTypeHeaders := []Header{{Name: "Content-Type", Value: writer.FormDataContentType()}}
	return apiClient.doRequest(method, url, &body, append(contentTypeHeaders, headers...), expectedStatusCode)
}

func (apiClient *ApiClient) doRequest(method string, url string, requestBody io.Reader, headers []Header, expectedStatusCode int) ([]byte, error) {
	if apiClient.client == nil {
		apiClient.client = &http.Client{}
	}

	req, err := http.NewRequest(method, apiClient.ApiURL+url, requestBody)
	if err != nil {
		return nil, utils.APIError{Status: 0, Code: "REQUEST_ERROR", Details: err.Error(), Method: method, Url: apiClient.ApiURL + url}
	}

	req.Header.Add("Accept", "application/json")

	for i := 0; i < len(apiClient.ExtraHeaders); i++ {
		req.Header.Add(apiClient.ExtraHeaders[i].Name, apiClient.ExtraHeaders[i].Value)
	}

	for i := 0; i < len(headers); i++ {
		req.Header.Add(headers[i].Name, headers[i].Value)
	}

	apiClient.Logger.Debug().Msg("API call: " + method + " " + req.URL.String())
	resp, err := apiClient.client.Do(req)
	if err != nil {
		return nil, utils.APIError{Status: 0, Code: "NETWORK_ERROR", Details: err.Error(), Method: method, Url: req.URL.String()}
	}

	defer func(Body io.ReadCloser) {
		closeErr := Body.Close()
		if closeErr != nil {
			apiClient.Logger.Error().Msg("Cannot close response body: " + closeErr.Error())
		}
	}(resp.Body)

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.APIError{Status: 0, Code: "RESPONSE_READER_ERROR", Details: err.Error(), Method: method, Url: req.URL.String()}
	}

	apiClient.Logger.Debug().Msg(fmt.Sprintf("Received response to %s %s, status code: %d", req.Method, req.URL.String(), resp.StatusCode))
	apiClient.Logger.Trace().Msg(fmt.Sprintf("Response body: %s", responseBody))
	if resp.StatusCode != expectedStatusCode {
		var responseServerError serverError
		err = json.Unmarshal(responseBody, &responseServerError)
		if err != nil || responseServerError.Code == "" {
			return nil, utils.APIError{Status: resp.StatusCode, Code: "UNKNOWN", Raw: string(responseBody), Method: method, Url: req.URL.String()}
		} else {
			return nil, utils.APIError{
				Status:  resp.StatusCode,
				Code:    responseServerError.Code,
				Id:      responseServerError.Id,
				Details: responseServerError.Detail,
				Url:     req.URL.String(),
				Method:  method,
				Raw:     string(responseBody),
			}
		}
	}

	return responseBody, nil
}
