package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/agora/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Constraint names referenced by callers.
const (
	ConstraintWalletBalance = "wallets_balance_non_negative"
	ConstraintPurchaseOnce  = "purchases_listing_id_key"
)

// MapPostgresError translates driver errors into model error kinds.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.ConstraintName)
		case "23514": // check_violation
			if pgErr.ConstraintName == ConstraintWalletBalance {
				return models.ErrInsufficientFunds
			}
			return fmt.Errorf("%w: %s", models.ErrBadRequest, pgErr.ConstraintName)
		case "23503", "23502", "22P02": // foreign key, not null, invalid text representation
			return models.ErrBadRequest
		}
	}

	return err
}

// IsConstraint reports whether err is a postgres violation of the named constraint.
func IsConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == name
}

// WithTransaction runs fn in a transaction, committing on success and
// rolling back on error or panic.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("commit transaction: %w", cerr)
		}
	}()

	return fn(tx)
}
