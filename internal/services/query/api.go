// Package query serves read-only JSON views of sensor state, history and
// alerts.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gssiot/sitewatch/internal/model/entities"
	"github.com/gssiot/sitewatch/internal/store"
)

type Store interface {
	AngleNode(ctx context.Context, doorNum int) (entities.AngleNode, error)
	AngleHistory(ctx context.Context, doorNum int, from time.Time) ([]entities.AngleNodeHistory, error)
	NodeHistory(ctx context.Context, doorNum int) ([]entities.NodeHistory, error)
	Alerts(ctx context.Context, f store.AlertFilter) ([]entities.AlertLog, error)
}

const (
	defaultMinutes = 60 * 24
	maxMinutes     = 31 * 24 * 60
	defaultLimit   = 100
	maxLimit       = 1000
)

type API struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func New(s Store, timeout time.Duration, log *slog.Logger) *API {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &API{store: s, timeout: timeout, now: time.Now, log: log.With("component", "query")}
}

// Register mounts the routes on mux:
//
//	GET /api/angles/{doorNum}
//	GET /api/angles/{doorNum}/history?minutes=1440
//	GET /api/doors/{doorNum}/history
//	GET /api/alerts?building=&doorNum=&level=&limit=
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/angles/{doorNum}", a.angleNode)
	mux.HandleFunc("GET /api/angles/{doorNum}/history", a.angleHistory)
	mux.HandleFunc("GET /api/doors/{doorNum}/history", a.doorHistory)
	mux.HandleFunc("GET /api/alerts", a.alerts)
}

func (a *API) angleNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "doorNum")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	n, err := a.store.AngleNode(ctx, id)
	if err != nil {
		a.fail(w, "angle node", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *API) angleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "doorNum")
	if !ok {
		return
	}
	minutes := queryInt(r, "minutes", defaultMinutes, 1, maxMinutes)
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	rows, err := a.store.AngleHistory(ctx, id, a.now().Add(-time.Duration(minutes)*time.Minute))
	if err != nil {
		a.fail(w, "angle history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doorNum": id, "count": len(rows), "history": rows})
}

func (a *API) doorHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "doorNum")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	rows, err := a.store.NodeHistory(ctx, id)
	if err != nil {
		a.fail(w, "door history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doorNum": id, "count": len(rows), "history": rows})
}

func (a *API) alerts(w http.ResponseWriter, r *http.Request) {
	f := store.AlertFilter{
		BuildingID: uint(queryInt(r, "building", 0, 0, 0)),
		Limit:      queryInt(r, "limit", defaultLimit, 1, maxLimit),
	}
	if v := strings.TrimSpace(r.URL.Query().Get("doorNum")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "doorNum must be an integer")
			return
		}
		f.DoorNum = &n
	}
	switch lv := entities.AlertLevel(strings.ToLower(r.URL.Query().Get("level"))); lv {
	case entities.LevelNone, entities.LevelYellow, entities.LevelRed:
		f.Level = lv
	default:
		writeError(w, http.StatusBadRequest, "level must be yellow or red")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	rows, err := a.store.Alerts(ctx, f)
	if err != nil {
		a.fail(w, "alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "alerts": rows})
}

func (a *API) fail(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	a.log.Error("query failed", "what", what, "err", err)
	writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}

// queryInt reads an integer parameter, clamped to [min, max]; max 0 means
// no upper bound. Missing or malformed values give def.
func queryInt(r *http.Request, key string, def, min, max int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
