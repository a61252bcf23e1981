package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

// captureLimit bounds how much of a body the audit trail keeps.
const captureLimit = 16 * 1024

// sensitiveFields lists JSON field names whose values are redacted before
// storage, keeping 3 leading and 3 trailing characters.
var sensitiveFields = map[string]bool{
	"password":      true,
	"api_key":       true,
	"secret":        true,
	"shared_secret": true,
	"token":         true,
	"authorization": true,
	"credit_card":   true,
	"ssn":           true,
}

// Auditor writes one AuditLog row per request, asynchronously after the
// response is sent. Failures are logged, never surfaced.
type Auditor struct {
	db     repository.DBTX
	audits repository.AuditRepository
	tasks  Tasks
	logger *slog.Logger
}

// NewAuditor creates the audit middleware.
func NewAuditor(db repository.DBTX, audits repository.AuditRepository, tasks Tasks, logger *slog.Logger) *Auditor {
	return &Auditor{db: db, audits: audits, tasks: tasks, logger: logger}
}

// Middleware wraps the rest of the pipeline so it observes the final status
// and the scope set by authentication.
func (a *Auditor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r = r.WithContext(withScopeHolder(r.Context()))

		var reqBody []byte
		if r.Body != nil {
			reqBody, _ = io.ReadAll(io.LimitReader(r.Body, captureLimit))
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(reqBody), r.Body))
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := &domain.AuditLog{
			RequestID:    requestUUID(r),
			IP:           ClientIP(r),
			Method:       r.Method,
			Path:         r.URL.Path,
			StatusCode:   rec.status,
			LatencyMS:    time.Since(start).Milliseconds(),
			RequestBody:  Redact(reqBody),
			ResponseBody: Redact(rec.body.Bytes()),
		}
		if scope := ScopeFrom(r.Context()); scope != nil {
			entry.PartnerID = &scope.PartnerID
			entry.APIKeyID = &scope.APIKeyID
		}

		a.tasks.Submit("audit-log", func(ctx context.Context) error {
			return a.audits.Insert(ctx, a.db, entry)
		})
	})
}

// recordingWriter captures the status and up to captureLimit bytes of the
// response body.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.body.Len() < captureLimit {
		room := captureLimit - w.body.Len()
		if room > len(b) {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// Redact masks sensitive JSON field values. Non-JSON bodies are stored as a
// quoted placeholder so the audit row stays valid JSON.
func Redact(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return json.RawMessage(`"<non-json body>"`)
	}
	out, err := json.Marshal(redactValue(decoded))
	if err != nil {
		return nil
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, inner := range val {
			if sensitiveFields[k] {
				if s, ok := inner.(string); ok {
					val[k] = mask(s)
					continue
				}
				val[k] = "<redacted>"
				continue
			}
			val[k] = redactValue(inner)
		}
		return val
	case []interface{}:
		for i := range val {
			val[i] = redactValue(val[i])
		}
		return val
	default:
		return v
	}
}

func mask(s string) string {
	if len(s) <= 8 {
		return "<redacted>"
	}
	return s[:3] + "..." + s[len(s)-3:]
}

func requestUUID(r *http.Request) uuid.UUID {
	if id, err := uuid.Parse(r.Header.Get("X-Request-ID")); err == nil {
		return id
	}
	return uuid.New()
}
