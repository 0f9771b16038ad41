package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// LangCode is a two-letter ISO 639-1 language code used to scope
// knowledge retrieval and translation groups.
type LangCode string

const (
	// LangDefault is assumed when a caller does not specify a language.
	LangDefault LangCode = "en"
)

var langPattern = regexp.MustCompile(`^[a-z]{2}$`)

// Validate checks if the LangCode is a well-formed ISO 639-1 code
func (l LangCode) Validate() error {
	if l == "" {
		return goerr.New("language code cannot be empty")
	}
	if !langPattern.MatchString(string(l)) {
		return goerr.New("language code must be a two-letter ISO 639-1 code", goerr.V("lang", l))
	}
	return nil
}

// Normalize returns the code, treating empty as LangDefault.
func (l LangCode) Normalize() LangCode {
	if l == "" {
		return LangDefault
	}
	return l
}

// String returns the string representation of LangCode
func (l LangCode) String() string {
	return string(l)
}
