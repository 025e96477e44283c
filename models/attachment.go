package models

import "github.com/dotorm/dotorm/field"

// AttachmentFields declares the attachment table: a file that can belong
// to any other model's row, discriminated by related_model (the target
// table name) and related_id (the target row's primary key), the way
// original_source's attachment module lets a user attach a file to a task,
// a project, or a chat message without a dedicated join table per target.
func AttachmentFields() *field.Registry {
	return field.NewRegistry("attachment",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("filename", 255, field.WithRequired(true)),
		field.Char("content_type", 128, field.WithRequired(true)),
		field.BigInteger("size_bytes", field.WithDefault(0)),
		field.Char("storage_key", 512, field.WithRequired(true), field.WithUnique(true)),
		field.PolymorphicMany2one("related", "related_model", "related_id"),
	)
}
