package router

import "github.com/gin-gonic/gin"

// Module mounts its routes on the group it is given.
type Module interface {
	Register(rg *gin.RouterGroup)
}

type mount struct {
	mod  Module
	root bool
}

// Registry collects modules and mounts them in one pass. API modules live
// under /api; root modules (health, welcome) sit on the engine itself and
// skip the /api middleware.
type Registry struct {
	Engine *gin.Engine
	API    *gin.RouterGroup

	apiMiddleware []gin.HandlerFunc
	mounts        []mount
}

func NewRegistry(engine *gin.Engine) *Registry {
	return &Registry{Engine: engine, API: engine.Group("/api")}
}

func (r *Registry) Use(mw ...gin.HandlerFunc) { r.apiMiddleware = append(r.apiMiddleware, mw...) }

func (r *Registry) Add(mod Module) { r.mounts = append(r.mounts, mount{mod: mod}) }

func (r *Registry) AddRoot(mod Module) { r.mounts = append(r.mounts, mount{mod: mod, root: true}) }

// RegisterAll must run once, after every Add.
func (r *Registry) RegisterAll() {
	r.API.Use(r.apiMiddleware...)
	for _, m := range r.mounts {
		if m.root {
			m.mod.Register(&r.Engine.RouterGroup)
			continue
		}
		m.mod.Register(r.API)
	}
}
