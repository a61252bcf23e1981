package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

// queryFilter lifts whitelisted query parameters into the repository filter.
// Both the bare field and its "__op" forms pass; "field__in" splits on comma.
func queryFilter(r *http.Request, fields ...string) repository.Filter {
	f := repository.Filter{}
	q := r.URL.Query()
	for key, values := range q {
		if len(values) == 0 || values[0] == "" {
			continue
		}
		field := key
		if i := strings.Index(key, "__"); i >= 0 {
			field = key[:i]
		}
		for _, allowed := range fields {
			if field != allowed {
				continue
			}
			if strings.HasSuffix(key, "__in") || strings.HasSuffix(key, "__notin") {
				f[key] = strings.Split(values[0], ",")
			} else {
				f[key] = values[0]
			}
			break
		}
	}
	return f
}

// queryPage parses skip/limit parameters. Bounds are enforced in the
// repository layer.
func queryPage(r *http.Request) repository.Page {
	var p repository.Page
	if n, err := strconv.Atoi(r.URL.Query().Get("skip")); err == nil && n > 0 {
		p.Skip = n
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		p.Limit = n
	}
	return p
}

// querySort parses "sort=field" or "sort=-field" (descending).
func querySort(r *http.Request) repository.Sort {
	raw := r.URL.Query().Get("sort")
	if raw == "" {
		return repository.Sort{}
	}
	if strings.HasPrefix(raw, "-") {
		return repository.Sort{Field: raw[1:], Desc: true}
	}
	return repository.Sort{Field: raw}
}

// pathUUID parses a UUID path parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.ErrValidation("invalid " + name)
	}
	return id, nil
}
