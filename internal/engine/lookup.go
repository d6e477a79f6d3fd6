package engine

import (
	"github.com/rs/zerolog"

	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
)

// Ambiguity policies for name lookups.
const (
	AmbiguityError = "error"
	AmbiguityFirst = "first"
)

// pick finds ref among items. An exact ID match wins. Otherwise names are
// compared case-insensitively: no match is a NotFoundError, several are an
// AmbiguityError unless policy is "first".
func pick[T any](log *zerolog.Logger, kind, ref, policy string, items []T, id, name func(T) string) (T, error) {
	var zero T
	for _, it := range items {
		if id(it) == ref {
			return it, nil
		}
	}

	cmp := pathkey.NewComparer(false)
	var matches []T
	for _, it := range items {
		if cmp.Equal(name(it), ref) {
			matches = append(matches, it)
		}
	}

	switch {
	case len(matches) == 0:
		return zero, &verrors.NotFoundError{Kind: kind, Name: ref}
	case len(matches) == 1:
		return matches[0], nil
	case policy == AmbiguityFirst:
		log.Warn().Str("kind", kind).Str("name", ref).Int("matches", len(matches)).
			Str("chosen", id(matches[0])).Msg("ambiguous name, using first match")
		return matches[0], nil
	}
	return zero, &verrors.AmbiguityError{Kind: kind, Name: ref, Matches: len(matches)}
}
