// Package models declares the example domain schema this repository ships
// to exercise every relation kind the runtime supports: Language and Role
// are leaf/self-referencing lookups, User ties them together, Project/Task/
// Tag exercise One2many and Many2many, Attachment exercises the
// polymorphic relations, and ChatMessage exercises the race-free
// get-or-create thread lookup.
package models

import "github.com/dotorm/dotorm/field"

// LanguageFields declares the language lookup table: the small, mostly
// static set of locales the rest of the schema's Many2one fields point at.
func LanguageFields() *field.Registry {
	return field.NewRegistry("language",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("code", 10, field.WithRequired(true), field.WithUnique(true)),
		field.Char("name", 128, field.WithRequired(true)),
		field.Boolean("active", field.WithDefault(true)),
	)
}
