package bib

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound signals a missing book or author.
	ErrNotFound = errors.New("bib: not found")
	// ErrConstraint signals an operation that would break a bibliographic
	// invariant (duplicate association, removing the last author, ...).
	ErrConstraint = errors.New("bib: constraint violation")
)

func classifyNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
