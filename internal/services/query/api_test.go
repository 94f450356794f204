package query

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gssiot/sitewatch/internal/model/entities"
	"github.com/gssiot/sitewatch/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T) (*store.Store, *httptest.Server, time.Time) {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "q.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	api := New(s, time.Second, quiet)
	api.now = func() time.Time { return now }
	mux := http.NewServeMux()
	api.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv, now
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAngleNode(t *testing.T) {
	s, srv, now := newServer(t)
	require.NoError(t, s.TouchSensor(context.Background(), 4, now))

	var n entities.AngleNode
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/angles/4", &n))
	assert.Equal(t, 4, n.DoorNum)
	assert.True(t, n.SaveStatus)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/angles/99", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/angles/x", nil))
}

func TestAngleHistoryWindow(t *testing.T) {
	s, srv, now := newServer(t)
	ctx := context.Background()
	for _, age := range []time.Duration{3 * time.Hour, 30 * time.Minute, time.Minute} {
		_, err := s.AppendAngleHistory(ctx, entities.AngleNodeHistory{GatewaySerial: "0001", DoorNum: 4, AngleX: 1, CreatedAt: now.Add(-age)})
		require.NoError(t, err)
	}

	var body struct {
		Count   int                         `json:"count"`
		History []entities.AngleNodeHistory `json:"history"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/angles/4/history?minutes=60", &body))
	assert.Equal(t, 2, body.Count)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/angles/4/history", &body))
	assert.Equal(t, 3, body.Count)
}

func TestDoorHistory(t *testing.T) {
	s, srv, now := newServer(t)
	require.NoError(t, s.AppendNodeHistory(context.Background(), entities.NodeHistory{GatewaySerial: "0001", DoorNum: 2, DoorChk: 1, CreatedAt: now}))

	var body struct {
		Count int `json:"count"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/doors/2/history", &body))
	assert.Equal(t, 1, body.Count)
}

func TestAlertsFilter(t *testing.T) {
	s, srv, now := newServer(t)
	ctx := context.Background()
	for i, lv := range []entities.AlertLevel{entities.LevelYellow, entities.LevelRed, entities.LevelRed} {
		_, err := s.AppendAlert(ctx, entities.AlertLog{
			BuildingID: 1, GatewaySerial: "0001", DoorNum: 3, Level: lv, Metric: "angle_x",
			Value: 6, Threshold: 5, CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	var body struct {
		Count  int                 `json:"count"`
		Alerts []entities.AlertLog `json:"alerts"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/alerts?building=1&level=RED", &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/alerts?limit=1", &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/alerts?building=2", &body))
	assert.Equal(t, 0, body.Count)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/alerts?level=purple", nil))
}

func TestAlertsFilterBySensorZero(t *testing.T) {
	s, srv, now := newServer(t)
	ctx := context.Background()
	for i, door := range []int{0, 3, 3} {
		_, err := s.AppendAlert(ctx, entities.AlertLog{
			BuildingID: 1, GatewaySerial: "0001", DoorNum: door, Level: entities.LevelRed, Metric: "angle_x",
			Value: 11, Threshold: 10, CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	var body struct {
		Count  int                 `json:"count"`
		Alerts []entities.AlertLog `json:"alerts"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/alerts?doorNum=0", &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, 0, body.Alerts[0].DoorNum)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/alerts?doorNum=3", &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/alerts?doorNum=-1", &body))
	assert.Equal(t, 0, body.Count)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/alerts?doorNum=abc", nil))
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?a=5&b=-1&c=nope&d=5000", nil)
	assert.Equal(t, 5, queryInt(r, "a", 1, 1, 10))
	assert.Equal(t, 1, queryInt(r, "b", 3, 1, 10))
	assert.Equal(t, 3, queryInt(r, "c", 3, 1, 10))
	assert.Equal(t, 10, queryInt(r, "d", 3, 1, 10))
	assert.Equal(t, 7, queryInt(r, "missing", 7, 1, 10))
}
