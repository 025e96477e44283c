package field

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var collator = cases.Title(language.English)

// Selection declares a VARCHAR(64) column restricted to a closed set of
// (value, label) options, such as a status or type column.
func Selection(name string, options []SelectOption, opts ...Option) *Descriptor {
	d := newDescriptor(name, KindSelection, "VARCHAR(64)")
	d.MaxLength = 64
	d.Options = options
	return apply(d, opts)
}

// SelectionExtension returns a Descriptor that, when applied through
// ext.Registry, appends additionalOptions to an existing Selection field
// declared by another model's extension instead of introducing a new
// field. Mirrors Selection.is_selection_add()/add_options() from the
// original field catalogue.
func SelectionExtension(name string, additionalOptions []SelectOption) *Descriptor {
	return &Descriptor{
		Name:         name,
		Kind:         KindSelection,
		Options:      additionalOptions,
		selectionAdd: true,
	}
}

// IsSelectionAdd reports whether d was declared via SelectionExtension.
func (d *Descriptor) IsSelectionAdd() bool { return d.selectionAdd }

// Values returns the selection's valid values, options only, no labels.
func (d *Descriptor) Values() []string {
	out := make([]string, len(d.Options))
	for i, o := range d.Options {
		out[i] = o.Value
	}
	return out
}

// Label returns the display label for value, or "" if value isn't a
// member of the selection, title-cased through golang.org/x/text/cases for
// locale-aware display when the declared label is empty.
func (d *Descriptor) Label(value string) string {
	for _, o := range d.Options {
		if o.Value == value {
			if o.Label != "" {
				return o.Label
			}
			return collator.String(value)
		}
	}
	return ""
}

// AddOptions appends new options to d that aren't already present,
// matching Selection.add_options' de-duplication rule: used by the
// extension registry to merge a SelectionExtension descriptor's options
// into the base field.
func (d *Descriptor) AddOptions(newOptions []SelectOption) {
	for _, opt := range newOptions {
		found := false
		for _, existing := range d.Options {
			if existing == opt {
				found = true
				break
			}
		}
		if !found {
			d.Options = append(d.Options, opt)
		}
	}
}
