package api_helper

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMakeRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "test-value", r.Header.Get("X-Test-Header"))
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/error":
			w.WriteHeader(403)
			_, _ = w.Write([]byte(`{"error_code":"FORBIDDEN","error_id":"ID1","detail":"nope"}`))
		case "/error-no-envelope":
			w.WriteHeader(500)
			_, _ = w.Write([]byte(`boom`))
		}
	}))
	defer server.Close()

	client := NewApiClient(server.URL+"/", []Header{{Name: "X-Test-Header", Value: "test-value"}}, zerolog.Nop())
	assert.Equal(t, server.URL, client.ApiURL) // trailing slash stripped

	t.Run("expected status", func(t *testing.T) {
		body, err := client.MakeRequest("POST", "/ok", []byte(`{}`), nil, 200)
		require.NoError(t, err)
		assert.Equal(t, `{"status":"ok"}`, string(body))
	})
	t.Run("server error envelope", func(t *testing.T) {
		_, err := client.MakeRequest("POST", "/error", nil, nil, 200)
		assert.ErrorIs(t, err, utils.APIError{Status: 403, Code: "FORBIDDEN"})
	})
	t.Run("server error without envelope", func(t *testing.T) {
		_, err := client.MakeRequest("GET", "/error-no-envelope", nil, nil, 200)
		assert.ErrorIs(t, err, utils.APIError{Status: 500, Code: "UNKNOWN"})
	})
	t.Run("network error", func(t *testing.T) {
		badClient := NewApiClient("http://127.0.0.1:1", nil, zerolog.Nop())
		_, err := badClient.MakeRequest("GET", "/nope", nil, nil, 200)
		assert.ErrorIs(t, err, utils.APIError{Status: 0, Code: "NETWORK_ERROR"})
	})
}

func TestMakeMultipartRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseMultipartForm(32 << 20)
		require.NoError(t, err)
		assert.Equal(t, "true", r.FormValue("save"))
		file, header, err := r.FormFile("front")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "front.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewApiClient(server.URL, nil, zerolog.Nop())
	body, err := client.MakeMultipartRequest(
		"POST",
		"/abc/analysis",
		map[string]string{"save": "true"},
		[]FilePart{{FieldName: "front", FileName: "front.jpg", ContentType: "image/jpeg", Data: []byte("fake-jpeg-bytes")}},
		nil,
		200,
	)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok"}`, string(body))
}
