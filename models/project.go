package models

import "github.com/dotorm/dotorm/field"

// ProjectFields declares the project table: owned by a user, and the
// One2many parent side of task.
func ProjectFields() *field.Registry {
	return field.NewRegistry("project",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("name", 255, field.WithRequired(true)),
		field.Text("description"),
		field.Many2one("owner", "user", "owner_id"),
		field.Selection("status", []field.SelectOption{
			{Value: "planning"},
			{Value: "active"},
			{Value: "on_hold", Label: "On Hold"},
			{Value: "closed"},
		}, field.WithDefault("planning")),
		field.One2many("tasks", "task", "project_id"),
	)
}
