package admission

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/betlink/hub/internal/domain"
)

// writeError writes the standard error envelope. Middleware cannot reach the
// handler package's respond helpers without an import cycle, so the write is
// duplicated here; the envelope itself lives in domain.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		appErr = domain.ErrInternal("internal server error", err)
	}
	w.WriteHeader(appErr.Status)
	json.NewEncoder(w).Encode(appErr.Envelope())
}
