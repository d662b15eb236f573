package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lox/blindbid/internal/catalog"
	"github.com/lox/blindbid/internal/directory"
)

// testLogger creates a logger that discards output for tests
func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

type testAPI struct {
	t     *testing.T
	srv   *httptest.Server
	games *directory.Directory
}

func newTestAPI(t *testing.T, dirOpts []directory.Option, opts ...Option) *testAPI {
	t.Helper()

	cat, err := catalog.Default()
	require.NoError(t, err)

	games := directory.New(cat, testLogger(), dirOpts...)
	srv := httptest.NewServer(NewServer(testLogger(), games, opts...).Handler())
	t.Cleanup(srv.Close)

	return &testAPI{t: t, srv: srv, games: games}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (a *testAPI) do(method, path string, body any, out any) int {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
