package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/upb/governance-ledger/middleware"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func requestIDOf(r *http.Request) string {
	return middleware.GetRequestIDFromContext(r.Context())
}

// actorOf returns the caller's ActorContext, writing a 401 when it is missing
func actorOf(w http.ResponseWriter, r *http.Request) (*models.ActorContext, bool) {
	actor := middleware.GetActorFromContext(r.Context())
	if actor == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return nil, false
	}
	return actor, true
}

// queryInt reads a non-negative integer query parameter bounded by max
func queryInt(r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	if v > max {
		v = max
	}
	return v, true
}

// pageParams reads limit and offset
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, ok = queryInt(r, "limit", defaultPageSize, maxPageSize)
	if !ok || limit == 0 {
		_ = utils.WriteBadRequest(w, "Invalid limit", nil)
		return 0, 0, false
	}
	offset, ok = queryInt(r, "offset", 0, math.MaxInt)
	if !ok {
		_ = utils.WriteBadRequest(w, "Invalid offset", nil)
		return 0, 0, false
	}
	return limit, offset, true
}
