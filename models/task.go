package models

import "github.com/dotorm/dotorm/field"

// TagFields declares the tag lookup table: free-form labels attached to
// tasks via the task_tag_rel join table.
func TagFields() *field.Registry {
	return field.NewRegistry("tag",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("name", 64, field.WithRequired(true), field.WithUnique(true)),
	)
}

// TaskFields declares the task table: belongs to a project, assigned to a
// user, tagged through a Many2many, and carries a selection-kind status
// column mirroring project.status.
func TaskFields() *field.Registry {
	return field.NewRegistry("task",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("title", 255, field.WithRequired(true)),
		field.Text("description"),
		field.Many2one("project", "project", "project_id"),
		field.Many2one("assignee", "user", "assignee_id"),
		field.Selection("status", []field.SelectOption{
			{Value: "todo", Label: "To Do"},
			{Value: "in_progress", Label: "In Progress"},
			{Value: "done"},
		}, field.WithDefault("todo")),
		field.Datetime("due_at", field.WithNull(true)),
		field.Many2many("tags", "tag", "task_tag_rel", "task_id", "tag_id"),
		field.PolymorphicOne2many("attachments", "related_model", "related_id", "attachment"),
	)
}
