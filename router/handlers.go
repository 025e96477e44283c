package router

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	gojson "github.com/goccy/go-json"

	"github.com/dotorm/dotorm/access"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/validation"
)

// resourceHandler closes over one Resource and implements every route
// Router.Register wires up, mirroring the teacher's per-collection closures
// (createWithAuth, readWithAuth, ...) in core/backend/collection.go, minus
// the auth check itself: that lives in the Guard wrapping the handler, not
// in the handler.
type resourceHandler struct {
	res Resource
}

func newResourceHandler(res Resource) *resourceHandler {
	return &resourceHandler{res: res}
}

// --- search -----------------------------------------------------------

type searchRequestBody struct {
	Fields []string `json:"fields"`
	Sort   string   `json:"sort"`
	Order  string   `json:"order"`
	Start  *int     `json:"start"`
	End    *int     `json:"end"`
	Limit  int      `json:"limit"`
	Filter any      `json:"filter"`
}

func (h *resourceHandler) search(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.res.Schemas.Validate(h.res.Table, validation.ModeSearchInput, payload); err != nil {
		writeError(w, err)
		return
	}

	var body searchRequestBody
	if err := remarshal(payload, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validateFields(body.Fields); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	opts := query.SearchOptions{Fields: body.Fields, Sort: body.Sort, Order: body.Order, Start: body.Start, End: body.End, Limit: body.Limit, Filter: body.Filter}
	rows, err := orm.Search(ctx, h.res.Model, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.hydrateRequested(ctx, body.Fields, rows); err != nil {
		writeError(w, err)
		return
	}
	total, err := orm.Count(ctx, h.res.Model, opts.Filter)
	if err != nil {
		writeError(w, err)
		return
	}

	data := make([]orm.Row, len(rows))
	for i, row := range rows {
		data[i] = orm.Serialize(h.res.Model.Registry, row, orm.ModeList)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "total": total, "fields": body.Fields})
}

// --- get (POST /{id}) ---------------------------------------------------

type fieldsRequestBody struct {
	Fields []string `json:"fields"`
}

func (h *resourceHandler) get(w http.ResponseWriter, r *http.Request) {
	id := parseID(mux.Vars(r)["id"])

	var body fieldsRequestBody
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := h.validateFields(body.Fields); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	row, err := orm.Get(ctx, h.res.Model, id, body.Fields)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.hydrateRequested(ctx, body.Fields, []orm.Row{row}); err != nil {
		writeError(w, err)
		return
	}
	data := orm.Serialize(h.res.Model.Registry, row, orm.ModeForm)
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "fields": body.Fields})
}

// --- default_values -----------------------------------------------------

func (h *resourceHandler) defaultValues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := access.Require(ctx, h.res.Table, access.Create); err != nil {
		writeError(w, err)
		return
	}

	var body fieldsRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validateFields(body.Fields); err != nil {
		writeError(w, err)
		return
	}

	requested := body.Fields
	if len(requested) == 0 {
		requested = h.res.Model.Registry.StoreNames()
	}
	data := make(orm.Row, len(requested))
	for _, name := range requested {
		f, ok := h.res.Model.Registry.Field(name)
		if !ok {
			continue
		}
		data[name] = defaultValueFor(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "fields": requested})
}

func defaultValueFor(f *field.Descriptor) any {
	if fn, ok := f.Default.(func() any); ok {
		return fn()
	}
	return f.Default
}

// --- create ---------------------------------------------------------

func (h *resourceHandler) create(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.res.Schemas.Validate(h.res.Table, validation.ModeCreate, payload); err != nil {
		writeError(w, err)
		return
	}

	scalar, relationCmds := h.splitPayload(payload)
	ctx := r.Context()
	id, err := orm.Create(ctx, h.res.Model, scalar)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.applyRelationCommands(ctx, id, relationCmds); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// --- update -----------------------------------------------------------

func (h *resourceHandler) update(w http.ResponseWriter, r *http.Request) {
	id := parseID(mux.Vars(r)["id"])

	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.res.Schemas.Validate(h.res.Table, validation.ModeUpdate, payload); err != nil {
		writeError(w, err)
		return
	}

	scalar, relationCmds := h.splitPayload(payload)
	ctx := r.Context()
	if len(scalar) > 0 {
		if err := orm.Update(ctx, h.res.Model, id, scalar); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := h.applyRelationCommands(ctx, id, relationCmds); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- delete / delete_bulk -----------------------------------------------

func (h *resourceHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := parseID(mux.Vars(r)["id"])
	if err := orm.Delete(r.Context(), h.res.Model, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (h *resourceHandler) deleteBulk(w http.ResponseWriter, r *http.Request) {
	var rawIDs []any
	if err := decodeBody(r, &rawIDs); err != nil {
		writeError(w, err)
		return
	}
	if err := orm.DeleteBulk(r.Context(), h.res.Model, rawIDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// --- search_many2many -----------------------------------------------

func (h *resourceHandler) searchMany2Many(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	relationName := q.Get("relation")
	rel, ok := h.res.Model.Registry.Field(relationName)
	if !ok || rel.Kind != field.KindMany2many {
		writeError(w, &FieldsNotFoundError{Table: h.res.Table, Fields: []string{relationName}})
		return
	}
	target := h.res.relatedModel(relationName)
	if target == nil {
		writeError(w, &FieldsNotFoundError{Table: h.res.Table, Fields: []string{relationName}})
		return
	}

	id := parseID(q.Get("id"))
	var fields []string
	if raw := q.Get("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}
	opts := query.SearchOptions{Sort: q.Get("sort"), Order: q.Get("order")}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = limit
	}

	rows, err := orm.GetMany2Many(r.Context(), h.res.Model, target, rel, id, fields, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	data := make([]orm.Row, len(rows))
	for i, row := range rows {
		data[i] = orm.Serialize(target.Registry, row, orm.ModeList)
	}
	// The query builder has no dedicated M2M count statement, so total
	// reflects the rows returned on this page rather than the full match
	// count; a caller that needs exact pagination totals should page until
	// it gets back fewer rows than the limit it asked for.
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "total": len(data), "fields": fields})
}

// --- fields -----------------------------------------------------------

type fieldDescriptor struct {
	Name           string   `json:"name"`
	Kind           string   `json:"kind"`
	Required       bool     `json:"required"`
	Null           bool     `json:"null"`
	RelationTarget string   `json:"relation_target,omitempty"`
	Options        []string `json:"options,omitempty"`
}

func (h *resourceHandler) fields(w http.ResponseWriter, r *http.Request) {
	all := h.res.Model.Registry.All()
	out := make([]fieldDescriptor, len(all))
	for i, f := range all {
		fd := fieldDescriptor{Name: f.Name, Kind: kindName(f.Kind), Null: f.Null}
		if f.Required != nil {
			fd.Required = *f.Required
		}
		if f.IsRelation() {
			fd.RelationTarget = f.RelationTarget
		}
		for _, opt := range f.Options {
			fd.Options = append(fd.Options, opt.Value)
		}
		out[i] = fd
	}
	writeJSON(w, http.StatusOK, out)
}

func kindName(k field.Kind) string {
	switch k {
	case field.KindInteger:
		return "integer"
	case field.KindBigInteger:
		return "big_integer"
	case field.KindSmallInteger:
		return "small_integer"
	case field.KindChar:
		return "char"
	case field.KindSelection:
		return "selection"
	case field.KindText:
		return "text"
	case field.KindBoolean:
		return "boolean"
	case field.KindDecimal:
		return "decimal"
	case field.KindDatetime:
		return "datetime"
	case field.KindDate:
		return "date"
	case field.KindTime:
		return "time"
	case field.KindFloat:
		return "float"
	case field.KindJSON:
		return "json"
	case field.KindBinary:
		return "binary"
	case field.KindMany2one:
		return "many2one"
	case field.KindOne2many:
		return "one2many"
	case field.KindMany2many:
		return "many2many"
	case field.KindOne2one:
		return "one2one"
	case field.KindPolymorphicMany2one:
		return "polymorphic_many2one"
	case field.KindPolymorphicOne2many:
		return "polymorphic_one2many"
	default:
		return "unknown"
	}
}

// --- shared helpers -----------------------------------------------------

// validateFields rejects any requested field name that isn't declared on
// the model, the "#FIELDS_NOT_FOUND" contract every route with a field
// subset enforces.
func (h *resourceHandler) validateFields(requested []string) error {
	var unknown []string
	for _, name := range requested {
		if _, ok := h.res.Model.Registry.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return &FieldsNotFoundError{Table: h.res.Table, Fields: unknown}
	}
	return nil
}

// hydrateRequested batch-loads any relation field present in requested
// (and registered in h.res.Related) across rows.
func (h *resourceHandler) hydrateRequested(ctx context.Context, requested []string, rows []orm.Row) error {
	var rels []*field.Descriptor
	for _, name := range requested {
		f, ok := h.res.Model.Registry.Field(name)
		if !ok || !f.IsRelation() {
			continue
		}
		if _, known := h.res.Related[name]; !known {
			continue
		}
		rels = append(rels, f)
	}
	if len(rels) == 0 {
		return nil
	}
	return orm.HydrateRelations(ctx, h.res.Model.Session(ctx), h.res.Model.Builder, rels, rows, h.res.targets())
}

// splitPayload separates a create/update payload into the scalar columns
// orm.Create/orm.Update write directly and the nested relation commands
// ApplyRelationCommands handles separately, keyed by relation field name.
func (h *resourceHandler) splitPayload(payload map[string]any) (map[string]any, map[string]orm.RelationCommand) {
	scalar := make(map[string]any, len(payload))
	commands := make(map[string]orm.RelationCommand)
	for name, value := range payload {
		f, ok := h.res.Model.Registry.Field(name)
		if ok && f.IsToMany() {
			commands[name] = decodeRelationCommand(value)
			continue
		}
		scalar[name] = value
	}
	return scalar, commands
}

func (h *resourceHandler) applyRelationCommands(ctx context.Context, parentID any, commands map[string]orm.RelationCommand) error {
	for name, cmd := range commands {
		rel, ok := h.res.Model.Registry.Field(name)
		if !ok {
			continue
		}
		related := h.res.relatedModel(name)
		if related == nil {
			continue
		}
		if err := orm.ApplyRelationCommands(ctx, h.res.Model, related, rel, parentID, cmd); err != nil {
			return err
		}
	}
	return nil
}

func decodeRelationCommand(value any) orm.RelationCommand {
	m, ok := value.(map[string]any)
	if !ok {
		return orm.RelationCommand{}
	}
	cmd := orm.RelationCommand{}
	if created, ok := m["created"].([]any); ok {
		cmd.Created = make([]map[string]any, 0, len(created))
		for _, row := range created {
			if rm, ok := row.(map[string]any); ok {
				cmd.Created = append(cmd.Created, rm)
			}
		}
	}
	cmd.Deleted = toAnySlice(m["deleted"])
	cmd.Selected = toAnySlice(m["selected"])
	cmd.Unselected = toAnySlice(m["unselected"])
	return cmd
}

func toAnySlice(v any) []any {
	s, ok := v.([]any)
	if !ok {
		return nil
	}
	return s
}

// parseID converts a path or query id segment to an int when possible, the
// shape every integer primary key in this schema uses; non-numeric ids
// (e.g. a UUID primary key some future model might declare) pass through
// as strings unchanged.
func parseID(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	if err := gojson.NewDecoder(r.Body).Decode(out); err != nil {
		return err
	}
	normalizeJSONNumbers(out)
	return nil
}

// normalizeJSONNumbers walks a decoded map[string]any/[]any tree in place
// and replaces every whole-valued float64 (the type JSON numbers decode to
// inside an any field) with an int, so an id round-tripped through a
// request body compares equal to the int the query builder and the rest of
// the ORM runtime use everywhere else.
func normalizeJSONNumbers(v any) {
	switch val := v.(type) {
	case *map[string]any:
		for k, e := range *val {
			(*val)[k] = normalizedJSONValue(e)
		}
	case *[]any:
		for i, e := range *val {
			(*val)[i] = normalizedJSONValue(e)
		}
	}
}

func normalizedJSONValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return int(val)
		}
		return val
	case map[string]any:
		for k, e := range val {
			val[k] = normalizedJSONValue(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = normalizedJSONValue(e)
		}
		return val
	default:
		return val
	}
}

// remarshal round-trips v through JSON into out, used to turn a validated
// map[string]any payload into the strongly typed request struct the
// handler actually works with without re-reading the request body.
func remarshal(v any, out any) error {
	encoded, err := gojson.Marshal(v)
	if err != nil {
		return err
	}
	return gojson.Unmarshal(encoded, out)
}
