package diag

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/blade-inspector/internal/store"
	"github.com/your-org/blade-inspector/internal/telemetry"
)

// SystemHandler serves the unauthenticated health/readiness endpoints,
// generalized from the teacher's handlers.SystemHandler.
type SystemHandler struct {
	db        *store.PostgresStore
	blobs     *store.BlobStore
	telemetry *telemetry.Publisher
}

func NewSystemHandler(db *store.PostgresStore, blobs *store.BlobStore, pub *telemetry.Publisher) *SystemHandler {
	return &SystemHandler{db: db, blobs: blobs, telemetry: pub}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports each configured backing store's reachability. A store
// left nil (not configured, e.g. simulate-mode runs) is reported "skipped"
// rather than failing the overall check.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	checkOne := func(name string, ping func() error) {
		if ping == nil {
			checks[name] = "skipped"
			return
		}
		if err := ping(); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	if h.db != nil {
		checkOne("postgres", func() error { return h.db.Ping(ctx) })
	} else {
		checks["postgres"] = "skipped"
	}
	if h.blobs != nil {
		checkOne("minio", func() error { return h.blobs.Ping(ctx) })
	} else {
		checks["minio"] = "skipped"
	}
	if h.telemetry != nil {
		checkOne("nats", h.telemetry.Ping)
	} else {
		checks["nats"] = "skipped"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
