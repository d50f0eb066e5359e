// Package topics canonicalises subscription topic sets and keeps a catalog of
// named topic templates.
//
// A topic is an opaque string naming a hub channel. The literal "*" is the
// universal wildcard: a set containing it collapses to {"*"}.
//
// Catalog definitions describe topics as RFC 6570 URI templates so a single
// definition can format a concrete topic and recognise topics of its shape:
//
//	book := topics.MustDefine(topics.Definition{
//		Name:        "book",
//		Description: "A single book resource",
//		Pattern:     "https://example.com/books/{id}",
//		Example:     "https://example.com/books/1",
//	})
//	topic, _ := book.Format(map[string]any{"id": 7})
//	book.Matches(topic) // true
package topics
