// Package validation generates JSON Schema documents from a field.Registry
// and compiles them into validators for each CRUD surface: create, update,
// search_output, read_output, and search_input. This is the Go-native
// replacement for a dynamic ORM building one pydantic model per operation
// at startup — a Registry builds and caches a map[string]any JSON Schema
// document per (table, mode) once, then compiles it with gojsonschema.
package validation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/field"
)

// Mode selects which CRUD surface a schema document targets.
type Mode string

const (
	ModeCreate       Mode = "create"
	ModeUpdate       Mode = "update"
	ModeSearchOutput Mode = "search_output"
	ModeReadOutput   Mode = "read_output"
	ModeSearchInput  Mode = "search_input"
)

// Triplet describes one (field, operators, value shape) combination a
// search filter may use against a table, surfaced to clients building
// filter UIs the way the original schema registry's search triplets did.
type Triplet struct {
	Field     string
	Operators []string
	ValueType string
}

type modelSchemas struct {
	documents map[Mode]map[string]any
	compiled  map[Mode]*gojsonschema.Schema
	triplets  []Triplet
}

// Registry builds and serves JSON Schema documents and validators for
// every registered model, across every Mode.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*modelSchemas
}

// NewRegistry returns an empty Registry; call Build once at startup.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*modelSchemas)}
}

// Build generates and compiles every Mode's schema for every table in
// tables, resolving relation targets against the same map so read_output's
// one level of nested relation reduction can see the related model's
// fields. Safe to call only once; call again after Reset to rebuild.
func (r *Registry) Build(tables map[string]*field.Registry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for table, fr := range tables {
		ms := &modelSchemas{
			documents: make(map[Mode]map[string]any),
			compiled:  make(map[Mode]*gojsonschema.Schema),
			triplets:  buildTriplets(fr),
		}
		docs := map[Mode]map[string]any{
			ModeCreate:       buildWriteSchema(table, fr, ModeCreate),
			ModeUpdate:       buildWriteSchema(table, fr, ModeUpdate),
			ModeSearchOutput: buildOutputSchema(table, fr, tables, ModeSearchOutput),
			ModeReadOutput:   buildOutputSchema(table, fr, tables, ModeReadOutput),
			ModeSearchInput:  buildSearchInputSchema(table, fr),
		}
		for mode, doc := range docs {
			schema, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewGoLoader(doc))
			if err != nil {
				return dotorm.NewConfigurationError(table, fmt.Sprintf("compiling %s schema: %s", mode, err))
			}
			ms.documents[mode] = doc
			ms.compiled[mode] = schema
		}
		r.models[table] = ms
	}
	return nil
}

// Reset clears every built schema, so Build can run again (hot reload,
// tests).
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]*modelSchemas)
}

// Schema returns the raw JSON Schema document for table/mode, for clients
// that introspect the shape (the generated /fields endpoint).
func (r *Registry) Schema(table string, mode Mode) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.models[table]
	if !ok {
		return nil, false
	}
	doc, ok := ms.documents[mode]
	return doc, ok
}

// Triplets returns the allowed filter (field, operator, value-shape)
// combinations for table.
func (r *Registry) Triplets(table string) []Triplet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ms, ok := r.models[table]; ok {
		return ms.triplets
	}
	return nil
}

// Validate checks payload against table's schema for mode.
func (r *Registry) Validate(table string, mode Mode, payload any) error {
	r.mu.RLock()
	ms, ok := r.models[table]
	r.mu.RUnlock()
	if !ok {
		return dotorm.NewConfigurationError(table, "no schema registered")
	}
	schema, ok := ms.compiled[mode]
	if !ok {
		return dotorm.NewConfigurationError(table, fmt.Sprintf("no %s schema registered", mode))
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return dotorm.NewConfigurationError(table, fmt.Sprintf("validating against %s schema: %s", mode, err))
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return dotorm.NewFilterError(fmt.Sprintf("%s.%s", table, mode), fmt.Sprintf("%v", msgs))
	}
	return nil
}

const idOrVirtualDescription = "either the related row's integer id, or the literal \"VirtualId\" placeholder for a row created earlier in the same request"

// buildWriteSchema renders the create or update JSON Schema for fr: the
// primary key is never accepted from the client, Many2one-family fields
// accept an id or the VirtualId placeholder, and to-many fields accept a
// RelationCommand-shaped changeset instead of full nested rows.
func buildWriteSchema(table string, fr *field.Registry, mode Mode) map[string]any {
	properties := map[string]any{}
	var required []string

	for _, f := range fr.All() {
		if f.PrimaryKey || f.Compute != nil {
			continue
		}
		properties[f.Name] = writeProperty(f)
		if mode == ModeCreate && isRequired(f) {
			required = append(required, f.Name)
		}
	}

	doc := map[string]any{
		"$id":                  table + "_" + string(mode),
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		sort.Strings(required)
		doc["required"] = required
	}
	return doc
}

func writeProperty(f *field.Descriptor) map[string]any {
	switch f.Kind {
	case field.KindMany2one, field.KindOne2one, field.KindPolymorphicMany2one:
		return map[string]any{
			"oneOf": []any{
				map[string]any{"type": "integer"},
				map[string]any{"const": "VirtualId"},
			},
			"description": idOrVirtualDescription,
		}
	case field.KindOne2many, field.KindPolymorphicOne2many:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"created": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
				"deleted": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
			},
			"additionalProperties": false,
		}
	case field.KindMany2many:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"created":    map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
				"selected":   map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
				"unselected": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
			},
			"additionalProperties": false,
		}
	default:
		return scalarProperty(f)
	}
}

func scalarProperty(f *field.Descriptor) map[string]any {
	prop := map[string]any{}
	switch f.Kind {
	case field.KindInteger, field.KindBigInteger, field.KindSmallInteger:
		prop["type"] = "integer"
	case field.KindChar, field.KindText:
		prop["type"] = "string"
		if f.Kind == field.KindChar && f.MaxLength > 0 {
			prop["maxLength"] = f.MaxLength
		}
	case field.KindSelection:
		prop["type"] = "string"
		prop["enum"] = f.Values()
	case field.KindBoolean:
		prop["type"] = "boolean"
	case field.KindDecimal, field.KindFloat:
		prop["type"] = "number"
	case field.KindDatetime:
		prop["type"] = "string"
		prop["format"] = "date-time"
	case field.KindDate:
		prop["type"] = "string"
		prop["format"] = "date"
	case field.KindTime:
		prop["type"] = "string"
		prop["format"] = "time"
	case field.KindJSON:
		// any JSON value is valid; the store layer round-trips it opaquely.
	case field.KindBinary:
		prop["type"] = "string"
		prop["contentEncoding"] = "base64"
	}
	if f.Description != "" {
		prop["description"] = f.Description
	}
	if f.Null {
		return nullable(prop)
	}
	return prop
}

// nullable wraps a non-relation property so an explicit null is accepted
// alongside its normal type, matching a Null=true column's Optional[...]
// annotation in the original schema generator.
func nullable(prop map[string]any) map[string]any {
	t, ok := prop["type"]
	if !ok {
		return prop
	}
	delete(prop, "type")
	prop["type"] = []any{t, "null"}
	return prop
}

func isRequired(f *field.Descriptor) bool {
	if f.SchemaRequired != nil {
		return *f.SchemaRequired
	}
	if f.PrimaryKey || f.IsToMany() {
		return false
	}
	return !f.Null
}

// relationSummaryProperty is the {id, name} shape every relation collapses
// to in search_output and beyond its first nesting level in read_output.
var relationSummaryProperty = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":   map[string]any{"type": "integer"},
		"name": map[string]any{"type": "string"},
	},
}

// buildOutputSchema renders the search_output or read_output JSON Schema
// for fr. search_output reduces every relation to {id, name} (or an array
// of them); read_output nests one level of the related model's own fields,
// with that nested level's relations reduced to {id, name} so the document
// never recurses past two levels.
func buildOutputSchema(table string, fr *field.Registry, tables map[string]*field.Registry, mode Mode) map[string]any {
	properties := map[string]any{}
	for _, f := range fr.All() {
		properties[f.Name] = outputProperty(f, tables, mode)
	}
	return map[string]any{
		"$id":        table + "_" + string(mode),
		"type":       "object",
		"properties": properties,
	}
}

func outputProperty(f *field.Descriptor, tables map[string]*field.Registry, mode Mode) map[string]any {
	if !f.IsRelation() {
		return scalarProperty(f)
	}

	var shape map[string]any
	if mode == ModeReadOutput {
		if target, ok := tables[f.RelationTarget]; ok {
			shape = reducedNestedSchema(target, tables)
		}
	}
	if shape == nil {
		shape = relationSummaryProperty
	}

	if f.IsToMany() {
		return map[string]any{"type": "array", "items": shape}
	}
	return nullable(map[string]any{"allOf": []any{shape}})
}

// reducedNestedSchema builds the one-level-deep object schema used inside
// read_output: target's own fields, with ITS relations collapsed to
// {id, name} regardless of mode, so nesting never goes past two levels.
func reducedNestedSchema(target *field.Registry, tables map[string]*field.Registry) map[string]any {
	properties := map[string]any{}
	for _, f := range target.All() {
		if f.IsRelation() {
			if f.IsToMany() {
				properties[f.Name] = map[string]any{"type": "array", "items": relationSummaryProperty}
			} else {
				properties[f.Name] = nullable(map[string]any{"allOf": []any{relationSummaryProperty}})
			}
			continue
		}
		properties[f.Name] = scalarProperty(f)
	}
	return map[string]any{"type": "object", "properties": properties}
}

// buildSearchInputSchema renders the request body shape for the generated
// search endpoint: which store/relation field names may be requested,
// sorted by, or filtered on, plus pagination and filter-expression shape.
func buildSearchInputSchema(table string, fr *field.Registry) map[string]any {
	names := fieldNames(fr)
	if len(names) == 0 {
		names = []string{fr.PrimaryKey().Name}
	}
	anyOfNames := make([]any, len(names))
	for i, n := range names {
		anyOfNames[i] = n
	}

	return map[string]any{
		"$id":  table + "_search_input",
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{"type": "array", "items": map[string]any{"type": "string", "enum": anyOfNames}},
			"sort":   map[string]any{"type": "string", "enum": anyOfNames, "default": fr.PrimaryKey().Name},
			"order":  map[string]any{"type": "string", "enum": []any{"ASC", "DESC", "asc", "desc"}, "default": "DESC"},
			"start":  map[string]any{"type": []any{"integer", "null"}},
			"end":    map[string]any{"type": []any{"integer", "null"}},
			"limit":  map[string]any{"type": []any{"integer", "null"}},
			"filter": map[string]any{"type": []any{"array", "null"}},
			"raw":    map[string]any{"type": "boolean", "default": false},
		},
	}
}

func fieldNames(fr *field.Registry) []string {
	var names []string
	for _, f := range fr.All() {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// buildTriplets enumerates the (field, operators, value shape) combinations
// a filter expression may use against fr, the way the original registry's
// triplet generator exposed them for a filter-building UI.
func buildTriplets(fr *field.Registry) []Triplet {
	var out []Triplet
	for _, f := range fr.All() {
		if f.IsRelation() {
			if f.IsToMany() {
				out = append(out, Triplet{Field: f.Name, Operators: []string{"in", "not in"}, ValueType: "array<id>"})
			} else {
				out = append(out, Triplet{Field: f.Name, Operators: []string{"=", "!=", ">", "<", ">=", "<="}, ValueType: "id"})
			}
			continue
		}
		out = append(out, Triplet{Field: f.Name, Operators: operatorsFor(f.Kind), ValueType: valueTypeFor(f.Kind)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func operatorsFor(k field.Kind) []string {
	switch k {
	case field.KindChar, field.KindText, field.KindSelection:
		return []string{"=", "like", "ilike", "=like", "=ilike", "not like", "not ilike"}
	case field.KindBoolean:
		return []string{"=", "!="}
	default:
		return []string{"=", "!=", ">", "<", ">=", "<="}
	}
}

func valueTypeFor(k field.Kind) string {
	switch k {
	case field.KindInteger, field.KindBigInteger, field.KindSmallInteger:
		return "integer"
	case field.KindBoolean:
		return "boolean"
	case field.KindDecimal, field.KindFloat:
		return "number"
	default:
		return "string"
	}
}
