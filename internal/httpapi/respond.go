// Package httpapi holds the single HTTP translation boundary (§7) and small
// helpers shared by every feature bundle's handlers.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fleethub/controlplane/internal/apierr"
)

// JSON writes v as a JSON body with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error translates err's apierr.Kind to a status code and writes
// {"error": message}. Errors that aren't a *apierr.Error (a store failing on
// something other than a validated business rule, e.g. a raw sqlite error)
// are not the caller's fault, so they map to 500 with a generic message
// rather than leaking internals at 400.
func Error(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	if e, ok := apierr.As(err); ok {
		message = e.Message
		switch e.Kind {
		case apierr.KindNotFound:
			status = http.StatusNotFound
		case apierr.KindConflict:
			status = http.StatusConflict
		case apierr.KindValidation:
			status = http.StatusBadRequest
		}
	}
	JSON(w, status, map[string]string{"error": message})
}

// DecodeJSON reads and JSON-decodes r.Body into v, returning a validation
// error on failure so Error() maps it to 400.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apierr.Validationf("request body is required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Validationf("invalid request body: %v", err)
	}
	return nil
}
