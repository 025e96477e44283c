package models

import (
	"context"

	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/orm"
)

// RoleFields declares the role table and its self-referencing based_roles
// edge: a role can be based on other roles, the way a "support manager"
// role might be declared as based on "support agent" plus its own extra
// permissions, without repeating the agent role's grants.
func RoleFields() *field.Registry {
	return field.NewRegistry("role",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("name", 128, field.WithRequired(true), field.WithUnique(true)),
		field.Text("description"),
		field.Many2many("based_roles", "role", "role_based_role_rel", "role_id", "based_role_id"),
	)
}

// Roles wraps the role Model with the permission-resolution operations a
// caller needs beyond plain CRUD.
type Roles struct {
	Model *orm.Model
}

// NewRoles pairs an already-built role Model with its resolution helpers.
func NewRoles(m *orm.Model) *Roles {
	return &Roles{Model: m}
}

// EffectiveRoleIDs returns roleID plus the id of every role it is
// transitively based on, in traversal order, via the recursive closure
// over based_roles. Postgres only; see orm.RecursiveClosure.
func (r *Roles) EffectiveRoleIDs(ctx context.Context, roleID any) ([]any, error) {
	rel := r.Model.Registry.MustField("based_roles")
	return orm.RecursiveClosure(ctx, r.Model, rel, roleID)
}
