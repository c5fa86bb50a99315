// Package repository is row-oriented access to the user-data store: watchlist
// items, genre affinity, taste profiles and content DNA.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a row does not exist, including when the
// backing table has not been migrated yet.
var ErrNotFound = errors.New("not found")

const pgUndefinedTable = "42P01"

// Querier is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// IsMissingTable reports whether err is Postgres "undefined_table".
func IsMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}

// Repositories groups every table accessor behind one querier.
type Repositories struct {
	Watchlist     *WatchlistRepository
	Affinity      *AffinityRepository
	TasteProfiles *TasteProfileRepository
	DNA           *DNARepository
}

func New(db Querier) *Repositories {
	return &Repositories{
		Watchlist:     NewWatchlistRepository(db),
		Affinity:      NewAffinityRepository(db),
		TasteProfiles: NewTasteProfileRepository(db),
		DNA:           NewDNARepository(db),
	}
}
