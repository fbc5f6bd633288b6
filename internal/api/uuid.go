package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

var (
	errMissingParam  = errors.New("missing")
	errMalformedUUID = errors.New("malformed")
)

// queryUUID reads a UUID from the query string. The two sentinel errors let
// callers word their 400 responses.
func queryUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return uuid.Nil, errMissingParam
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errMalformedUUID
	}
	return id, nil
}
