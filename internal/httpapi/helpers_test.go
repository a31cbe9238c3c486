package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, target, nil)
}
