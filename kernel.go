// Package dotorm is a generic asynchronous relational ORM with an
// automatic REST/validation/CRUD layer on top. The root package holds the
// shared kernel types every other package is written against: the error
// taxonomy (errors.go), the pluggable Cache contract (cache.go), and the
// Value/Op/Query/Mutation markers below that let the access and orm
// packages exchange operations without an import cycle.
package dotorm

import "context"

// Value is the result of running a Query or a Mutation: a single row map,
// a slice of row maps, a count, or nil.
type Value any

// Op identifies the CRUD verb behind a Query or Mutation, independent of
// which model it runs against.
type Op string

const (
	OpGet          Op = "get"
	OpSearch       Op = "search"
	OpCount        Op = "count"
	OpExists       Op = "exists"
	OpCreate       Op = "create"
	OpUpdate       Op = "update"
	OpDelete       Op = "delete"
	OpDeleteBulk   Op = "delete_bulk"
	OpSearchM2M    Op = "search_many2many"
)

// Query is implemented by every read operation the orm package builds, so
// access.Checker rules can inspect table, op, and filter without depending
// on the orm package's concrete types.
type Query interface {
	Table() string
	Op() Op
}

// Mutation is implemented by every write operation the orm package builds.
type Mutation interface {
	Table() string
	Op() Op
}

// Querier runs a Query and returns its Value.
type Querier interface {
	Query(context.Context, Query) (Value, error)
}

// Mutator runs a Mutation and returns its Value.
type Mutator interface {
	Mutate(context.Context, Mutation) (Value, error)
}

// QuerierFunc adapts a function to a Querier.
type QuerierFunc func(context.Context, Query) (Value, error)

// Query implements Querier.
func (f QuerierFunc) Query(ctx context.Context, q Query) (Value, error) { return f(ctx, q) }

// MutatorFunc adapts a function to a Mutator.
type MutatorFunc func(context.Context, Mutation) (Value, error)

// Mutate implements Mutator.
func (f MutatorFunc) Mutate(ctx context.Context, m Mutation) (Value, error) { return f(ctx, m) }
