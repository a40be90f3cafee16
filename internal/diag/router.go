// Package diag serves the vision core's diagnostics surface: liveness,
// readiness, Prometheus metrics, and a WebSocket telemetry feed —
// generalized from the teacher's internal/api package (same gin+cors
// middleware stack, same router-builder shape), scoped down to the
// read-only surface a blade-inspection core needs rather than the full
// face-recognition CRUD API.
package diag

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/blade-inspector/internal/store"
	"github.com/your-org/blade-inspector/internal/telemetry"
)

// RouterConfig wires the diagnostics server's optional backing stores.
// Any of DB/Blobs/Telemetry may be nil (e.g. a simulate-only run);
// Readyz reports those as "skipped" rather than failing.
type RouterConfig struct {
	APIKey    string
	DB        *store.PostgresStore
	Blobs     *store.BlobStore
	Telemetry *telemetry.Publisher
	Hub       *Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	systemH := NewSystemHandler(cfg.DB, cfg.Blobs, cfg.Telemetry)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(APIKeyMiddleware(cfg.APIKey))
	v1.GET("/ws", cfg.Hub.HandleWS)

	return r
}
