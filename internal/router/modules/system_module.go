package modules

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceVersion = "1.0.0"

// Pinger reports whether a backing service answers.
type Pinger func(ctx context.Context) error

// SystemModule serves GET / and GET /health on the engine root.
type SystemModule struct {
	Service string
	Checks  map[string]Pinger
}

func NewSystemModule(service string, checks map[string]Pinger) *SystemModule {
	return &SystemModule{Service: service, Checks: checks}
}

func (m *SystemModule) Register(rg *gin.RouterGroup) {
	rg.GET("/", m.root)
	rg.GET("/health", m.health)
}

func (m *SystemModule) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to " + m.Service + " API",
		"version": serviceVersion,
		"features": []string{
			"Registration and login",
			"Token refresh and logout",
			"Email verification",
			"Password reset",
			"Role-based access",
			"Accessibility preferences",
		},
	})
}

func (m *SystemModule) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	deps := make(map[string]string, len(m.Checks))
	for name, ping := range m.Checks {
		if err := ping(ctx); err != nil {
			deps[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	c.JSON(code, gin.H{
		"status":       status,
		"service":      m.Service,
		"version":      serviceVersion,
		"dependencies": deps,
	})
}
