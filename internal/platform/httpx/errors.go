package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the data layers that do not carry their own error
// taxonomy. Repositories wrap these so handlers can hand the error straight
// to RespondError.
var (
	ErrNotFound  = errors.New("resource not found")
	ErrDuplicate = errors.New("duplicate entry")
	ErrForbidden = errors.New("forbidden")
)

// RespondError maps a wrapped sentinel to its RFC7807 response. Anything
// unrecognised is an infrastructure fault and renders as a bare 500 with no
// detail leaked.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
