// Package health contiene el controller de /readyz.
package health

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/snsoauth/internal/http/errors"
	"github.com/dropDatabas3/snsoauth/internal/http/response"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

// Check es un componente a verificar. Si un componente Critical falla el
// servicio queda "unavailable"; si no, "degraded".
type Check struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

// Deps contiene las dependencias del controller.
type Deps struct {
	Checks  []Check
	Version string
	Timeout time.Duration // por check; default 2s
}

// Response es el cuerpo de /readyz.
type Response struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// HealthController maneja las rutas de health check.
type HealthController struct {
	deps Deps
}

// NewHealthController crea un nuevo controller de health check.
func NewHealthController(d Deps) *HealthController {
	if d.Timeout <= 0 {
		d.Timeout = 2 * time.Second
	}
	return &HealthController{deps: d}
}

// Readyz maneja GET /readyz.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	resp := c.check(ctx)
	if resp.Version != "" {
		w.Header().Set("X-Service-Version", resp.Version)
	}

	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}

	log.Debug("health check completed",
		logger.String("status", resp.Status),
		logger.Int("components_count", len(resp.Components)),
	)
	response.WriteJSON(w, status, resp)
}

func (c *HealthController) check(ctx context.Context) Response {
	resp := Response{
		Status:     "ready",
		Version:    c.deps.Version,
		Components: make(map[string]string, len(c.deps.Checks)),
		Timestamp:  time.Now().UTC(),
	}
	for _, chk := range c.deps.Checks {
		cctx, cancel := context.WithTimeout(ctx, c.deps.Timeout)
		err := chk.Ping(cctx)
		cancel()
		if err == nil {
			resp.Components[chk.Name] = "ok"
			continue
		}
		logger.From(ctx).Warn("health component down", logger.Component(chk.Name), logger.Err(err))
		resp.Components[chk.Name] = "down"
		switch {
		case chk.Critical:
			resp.Status = "unavailable"
		case resp.Status == "ready":
			resp.Status = "degraded"
		}
	}
	return resp
}
