// Package domain contains the core entities of the note processing
// pipeline and their validation rules.
package domain
