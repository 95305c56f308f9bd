package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// ParseJSONOrError decodes the request body into dest, writing a 400
// error envelope on failure. Returns false when the caller should stop.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// ParsePathInt64OrError extracts an int64 path parameter, writing a
// 400 error envelope on failure.
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	str := mux.Vars(r)[key]
	if str == "" {
		WriteBadRequest(w, "missing path parameter: "+key)
		return 0, false
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid integer for %s: %s", key, str))
		return 0, false
	}
	return val, true
}

// ParseQueryInt extracts an integer query parameter, falling back to
// defaultVal when absent or unparsable.
func ParseQueryInt(r *http.Request, key string, defaultVal int) int {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	return val
}

// ParseQueryInt64 extracts an int64 query parameter, returning nil
// when absent.
func ParseQueryInt64(r *http.Request, key string) *int64 {
	str := r.URL.Query().Get(key)
	if str == "" {
		return nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return nil
	}
	return &val
}

// ParseQueryTime extracts an RFC 3339 query parameter, returning nil
// when absent or unparsable.
func ParseQueryTime(r *http.Request, key string) *time.Time {
	str := r.URL.Query().Get(key)
	if str == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return nil
	}
	return &t
}
