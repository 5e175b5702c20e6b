package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkosms/smscd/internal/config"
	"github.com/arkosms/smscd/internal/session"
	"github.com/arkosms/smscd/internal/stats"
)

type staticSessions []session.Info

func (s staticSessions) Sessions() []session.Info { return s }

func newTestServer(st *stats.Stats, sessions SessionLister) *Server {
	return NewServer(config.AdminConfig{Addr: ":0"}, st, sessions)
}

func TestStatisticsEndpoint(t *testing.T) {
	st := stats.New()
	st.ConnectionOpened("10.0.0.9")
	st.TryBind("esme1", "10.0.0.9", func(_, _ int64) bool { return true })
	srv := newTestServer(st, staticSessions(nil))

	rec := httptest.NewRecorder()
	srv.handleStatistics(rec, httptest.NewRequest(http.MethodGet, "/statistics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap stats.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.CurrentConnections)
	assert.Equal(t, int64(1), snap.Users["esme1"].CurrentBinds)
}

func TestSessionsEndpoint(t *testing.T) {
	srv := newTestServer(stats.New(), staticSessions{
		{ID: "abc", SystemID: "esme1", RemoteAddr: "10.0.0.9:41000"},
	})

	rec := httptest.NewRecorder()
	srv.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var infos []session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "esme1", infos[0].SystemID)
}

func TestSessionsEndpointEmptyIsArray(t *testing.T) {
	srv := newTestServer(stats.New(), staticSessions(nil))

	rec := httptest.NewRecorder()
	srv.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, "[]\n", rec.Body.String())
}
