package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Do sends a JSON request through handler and returns the status and raw body.
// An empty auth leaves the Authorization header unset.
func Do(t *testing.T, handler http.Handler, method, path, body, auth string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	raw, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return rr.Code, raw
}

// ErrorCode returns the "error" member of an error envelope.
func ErrorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(raw, &body), "body: %s", raw)
	return body["error"]
}

// Decode unmarshals raw into a new T.
func Decode[T any](t *testing.T, raw []byte) *T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body: %s", raw)
	return &v
}
