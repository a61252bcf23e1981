package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/betlink/hub/internal/infra"
)

// HealthHandler reports liveness of the two stores. Degraded Redis still
// answers 200 because the hot paths fall back to Postgres.
func HealthHandler(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "postgres": "up", "redis": "up"}

		if err := infra.HealthCheck(r.Context(), pool); err != nil {
			status["status"] = "unhealthy"
			status["postgres"] = "down"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(status)
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = "down"
		}
		json.NewEncoder(w).Encode(status)
	}
}
