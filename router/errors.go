package router

import (
	"fmt"
	"net/http"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/dotorm/dotorm"
)

// FieldsNotFoundError is returned when a request names fields outside the
// model's declared set, per the CRUD Router Generator's deterministic
// "#FIELDS_NOT_FOUND" contract.
type FieldsNotFoundError struct {
	Table  string
	Fields []string
}

func (e *FieldsNotFoundError) Error() string {
	return fmt.Sprintf("router: unknown fields on %s: %s", e.Table, strings.Join(e.Fields, ", "))
}

// errorBody is the wire shape of every non-2xx response: a stable code a
// client can switch on, plus a human-readable message.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps err to an HTTP status and a deterministic error code and
// writes it as the response body. Unrecognized errors fall back to 500 with
// a generic code rather than leaking internal error text verbatim.
func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "#INTERNAL"
	switch {
	case dotorm.IsNotFound(err):
		status, code = http.StatusNotFound, "#NOT_FOUND"
	case isFieldsNotFound(err):
		status, code = http.StatusBadRequest, "#FIELDS_NOT_FOUND"
	case dotorm.IsAccessDenied(err):
		status, code = http.StatusForbidden, "#ACCESS_DENIED"
	case dotorm.IsFilterError(err):
		status, code = http.StatusBadRequest, "#INVALID_FILTER"
	case dotorm.IsConfigurationError(err):
		status, code = http.StatusBadRequest, "#INVALID_SCHEMA"
	case dotorm.IsConstraintError(err):
		status, code = http.StatusConflict, "#CONSTRAINT_VIOLATION"
	}
	writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
}

func isFieldsNotFound(err error) bool {
	_, ok := err.(*FieldsNotFoundError)
	return ok
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(body)
}
