// Package idgen generates short, URL-safe prefixed IDs backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Entity ID prefixes.
const (
	PrefixStage       = "st-"
	PrefixGate        = "gt-"
	PrefixRequirement = "rq-"
	PrefixEvaluation  = "ev-"
	PrefixProject     = "pj-"
	PrefixRecord      = "rc-"
)

// Alphabet is the character set of the random part of an ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters after the prefix.
const Length = 12

// New returns a random ID with the given prefix.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Ensure returns id unchanged when it is set, otherwise a new ID with prefix.
func Ensure(id, prefix string) (string, error) {
	if id != "" {
		return id, nil
	}
	return New(prefix)
}
