package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/betlink/hub/internal/domain"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes the standard error envelope, detecting domain.AppError
// for status codes. Unknown errors are masked as INTERNAL_ERROR.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		appErr = domain.ErrInternal("internal server error", err)
	}
	RespondJSON(w, appErr.Status, appErr.Envelope())
}

// DecodeJSON reads and decodes a JSON request body into dst. Unknown fields
// are rejected so partners find their typos instead of silent drops.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation("invalid json body: " + err.Error())
	}
	return nil
}
