package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
)

// IntRange bounds a numeric query parameter. Default applies when the
// parameter is absent or blank.
type IntRange struct {
	Default int
	Min     int
	Max     int
}

// QueryInt reads ?key as an int inside rng.
func QueryInt(r *http.Request, key string, rng IntRange) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return rng.Default, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	if value < rng.Min || value > rng.Max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "value": value, "min": rng.Min, "max": rng.Max})
	}
	return value, nil
}

// QueryString returns the trimmed ?key, cut to maxLen bytes.
func QueryString(r *http.Request, key string, maxLen int) string {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if maxLen > 0 && len(raw) > maxLen {
		return raw[:maxLen]
	}
	return raw
}
