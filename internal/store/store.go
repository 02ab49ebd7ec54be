// Package store holds the ScyllaDB repositories behind the service packages.
package store

import (
	"errors"

	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

// casAttempts bounds the read-then-LWT loops used for set updates.
const casAttempts = 5

var errCASExhausted = errors.New("conditional update kept losing the race")

func notFound(err error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return models.ErrNotFound
	}
	return err
}
