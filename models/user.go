package models

import "github.com/dotorm/dotorm/field"

// UserFields declares the user table: a Many2one to language (one locale
// per user) and a Many2many to role (a user holds any number of roles).
func UserFields() *field.Registry {
	return field.NewRegistry("user",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("email", 255, field.WithRequired(true), field.WithUnique(true)),
		field.Char("display_name", 255, field.WithRequired(true)),
		field.Boolean("active", field.WithDefault(true)),
		field.Many2one("language", "language", "language_id"),
		field.Many2many("roles", "role", "user_role_rel", "user_id", "role_id"),
		field.One2many("projects", "project", "owner_id"),
		field.One2many("tasks", "task", "assignee_id"),
	)
}
