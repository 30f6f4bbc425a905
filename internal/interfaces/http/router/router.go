// Package router assembles the gin routes of the lending API.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// API mounts route groups under /api/<version>.
type API struct {
	engine  *gin.Engine
	version string
}

// Option configures an API
type Option func(*API)

// WithVersion sets the path version, "v1" by default.
func WithVersion(version string) Option {
	return func(a *API) { a.version = version }
}

// NewAPI creates an API rooted on engine
func NewAPI(engine *gin.Engine, opts ...Option) *API {
	a := &API{engine: engine, version: "v1"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BasePath is the prefix every mounted group lives under
func (a *API) BasePath() string {
	return "/api/" + a.version
}

// Mount registers groups on the engine. Groups are declarative until
// mounted, so middleware set with Use applies to routes added before or after.
func (a *API) Mount(groups ...*Group) {
	base := a.engine.Group(a.BasePath())
	for _, g := range groups {
		g.mount(base)
	}
}

// Group collects routes that share a path prefix and middleware.
type Group struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	children   []*Group
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewGroup creates a group at prefix guarded by middleware
func NewGroup(prefix string, middleware ...gin.HandlerFunc) *Group {
	return &Group{prefix: prefix, middleware: middleware}
}

// Use appends middleware
func (g *Group) Use(middleware ...gin.HandlerFunc) *Group {
	g.middleware = append(g.middleware, middleware...)
	return g
}

// Handle adds a route
func (g *Group) Handle(method, path string, handlers ...gin.HandlerFunc) *Group {
	g.routes = append(g.routes, route{method: method, path: path, handlers: handlers})
	return g
}

func (g *Group) GET(path string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodGet, path, handlers...)
}

func (g *Group) POST(path string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodPost, path, handlers...)
}

// Sub nests a group below g; it inherits g's middleware.
func (g *Group) Sub(prefix string, middleware ...gin.HandlerFunc) *Group {
	child := NewGroup(prefix, middleware...)
	g.children = append(g.children, child)
	return child
}

func (g *Group) mount(parent *gin.RouterGroup) {
	rg := parent.Group(g.prefix, g.middleware...)
	for _, r := range g.routes {
		rg.Handle(r.method, r.path, r.handlers...)
	}
	for _, child := range g.children {
		child.mount(rg)
	}
}
