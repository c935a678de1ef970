// Package prefs stores per-user preferences shared between the interactive
// process and the worker pool.
//
// All users' records live in one JSON document guarded by a companion lock
// file, so every access pays an exclusive-lock round trip. That is acceptable
// because preference mutations are rare next to retrieval traffic; it is the
// known scaling limit of this store (see DESIGN.md).
package prefs

import "context"

const (
	// NoProject is the sentinel active_project value meaning "no project
	// selected yet".
	NoProject = "default"

	// DefaultLanguage is the language assigned to new records.
	DefaultLanguage = "en"
)

// Record is one user's preferences. Missing users get DefaultRecord.
type Record struct {
	// ActiveProject is the project slug targeted by uploads and questions.
	ActiveProject string `json:"active_project"`

	// Language is the reply/generation language code (en, ru, de).
	Language string `json:"language"`

	// MainTopic is the project's research topic, empty when unset.
	MainTopic string `json:"main_topic,omitempty"`
}

// DefaultRecord returns the record for a user never seen before.
func DefaultRecord() Record {
	return Record{
		ActiveProject: NoProject,
		Language:      DefaultLanguage,
	}
}

// HasProject reports whether the record names a real project.
func (r Record) HasProject() bool {
	return r.ActiveProject != "" && r.ActiveProject != NoProject
}

// Update carries the fields to merge into a record. Nil fields are left
// untouched, so concurrent updates to different fields both land.
type Update struct {
	ActiveProject *string
	Language      *string
	MainTopic     *string
}

// Store is the preference store contract.
//
// Get never fails from the caller's perspective: absent users and corrupt
// state both degrade to defaults. Set performs a whole-record
// read-modify-write under the store's exclusive lock.
type Store interface {
	Get(ctx context.Context, userID int64) Record
	Set(ctx context.Context, userID int64, update Update) error
}

// String is a convenience for building Update fields.
func String(s string) *string {
	return &s
}
