package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

// parseQuery reads key with parse. ok is false when the parameter is blank.
func parseQuery[T any](r *http.Request, key, want string, parse func(string) (T, error)) (value T, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return value, false, nil
	}
	value, err = parse(raw)
	if err != nil {
		return value, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "query parameter must be "+want).
			WithDetails(map[string]any{"field": key})
	}
	return value, true, nil
}

// ParseQueryInt returns defaultVal when key is absent and rejects values
// outside [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	value, ok, err := parseQuery(r, key, "numeric", strconv.Atoi)
	switch {
	case err != nil:
		return 0, err
	case !ok:
		return defaultVal, nil
	case value < min || value > max:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool treats an absent flag as false.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	value, _, err := parseQuery(r, key, "a boolean", strconv.ParseBool)
	return value, err
}

// ParseQueryUUID returns nil when key is absent.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	id, ok, err := parseQuery(r, key, "a uuid", uuid.Parse)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}
