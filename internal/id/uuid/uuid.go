// Package uuid generates time-ordered job identifiers.
package uuid

import guuid "github.com/google/uuid"

// Generator issues UUIDv7 identifiers so job IDs sort by creation time.
type Generator struct{}

// New returns a Generator.
func New() Generator { return Generator{} }

// NewID returns a fresh identifier.
func (Generator) NewID() (string, error) {
	id, err := guuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
