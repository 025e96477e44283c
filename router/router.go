// Package router binds a Model, its Schema Registry entry, and a set of
// related Models into a generated REST resource: search/get/default_values/
// create/update/delete/delete_bulk/search_many2many/fields, the way
// relabs-tech-kurbisio's core/backend/collection.go builds one
// gorilla/mux resource per collection instead of hand-writing a handler
// per endpoint.
package router

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/validation"
)

// Guard is the pluggable auth middleware every generated route is wrapped
// in. The default implementation is NewJWTGuard; callers with their own
// identity strategy can supply any mux.MiddlewareFunc instead.
type Guard = mux.MiddlewareFunc

// Resource wires one table's Model to the Models of every relation field a
// client may ask to hydrate, plus the compiled schema set that validates
// and shapes its request/response bodies. Table is the model's name, as
// registered with both field.Registry and validation.Registry; Prefix is
// the URL path segment the routes are mounted under and defaults to
// "/"+Table when empty, the two only needing to differ when a route
// prefix doesn't match the table name one-to-one.
type Resource struct {
	Table   string
	Prefix  string
	Model   *orm.Model
	Related map[string]*orm.Model // relation field name -> target Model
	Schemas *validation.Registry
}

func (res Resource) prefix() string {
	if res.Prefix != "" {
		return res.Prefix
	}
	return "/" + res.Table
}

// targets reduces Related to the map query.BuildSearchRelation/
// orm.HydrateRelations expects: field name -> target query.Builder.
func (res Resource) targets() map[string]*query.Builder {
	out := make(map[string]*query.Builder, len(res.Related))
	for name, m := range res.Related {
		out[name] = m.Builder
	}
	return out
}

// relatedModel returns the Model registered for a relation field, or nil.
func (res Resource) relatedModel(name string) *orm.Model {
	return res.Related[name]
}

// Router accumulates generated resources onto one mux.Router.
type Router struct {
	mux   *mux.Router
	guard Guard
}

// New wraps root (or a fresh mux.Router if root is nil) and wraps every
// registered route's handler in guard, then in
// handlers.CompressHandler, matching the teacher's
// `router.Handle(route, handlers.CompressHandler(http.HandlerFunc(...)))`
// wiring. A nil guard registers routes unguarded, for tests and for
// internal resources the caller authenticates some other way.
func New(root *mux.Router, guard Guard) *Router {
	if root == nil {
		root = mux.NewRouter()
	}
	return &Router{mux: root, guard: guard}
}

// Mux returns the underlying gorilla/mux router, e.g. to pass to
// http.ListenAndServe or to mount under a larger application router.
func (rt *Router) Mux() *mux.Router { return rt.mux }

func (rt *Router) handle(path string, methods []string, h http.HandlerFunc) {
	wrapped := http.Handler(h)
	if rt.guard != nil {
		wrapped = rt.guard(wrapped)
	}
	rt.mux.Handle(path, handlers.CompressHandler(wrapped)).Methods(methods...)
}

// Register builds every CRUD route for res under prefix ("/tasks", say).
// Literal routes ("/search", "/default_values", "/search_many2many",
// "/fields", "/bulk") are registered before the "/{id}" pattern routes, so
// gorilla/mux's first-match-wins ordering never lets a literal segment get
// swallowed as a path variable — most visibly "/fields", which must win
// over "/{id}" per the CRUD Router Generator's ordering rule.
func (rt *Router) Register(res Resource) {
	h := newResourceHandler(res)
	prefix := res.prefix()

	rt.handle(prefix+"/search", []string{http.MethodPost}, h.search)
	rt.handle(prefix+"/default_values", []string{http.MethodPost}, h.defaultValues)
	rt.handle(prefix+"/search_many2many", []string{http.MethodGet}, h.searchMany2Many)
	rt.handle(prefix+"/fields", []string{http.MethodGet}, h.fields)
	rt.handle(prefix+"/bulk", []string{http.MethodDelete}, h.deleteBulk)

	rt.handle(prefix, []string{http.MethodPost}, h.create)
	rt.handle(prefix+"/{id}", []string{http.MethodPost}, h.get)
	rt.handle(prefix+"/{id}", []string{http.MethodPut}, h.update)
	rt.handle(prefix+"/{id}", []string{http.MethodDelete}, h.delete)
}
