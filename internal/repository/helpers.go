package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. This is a common pattern for Find* operations
// where a missing row is not an error condition, and for conditional updates
// where zero affected rows means another trigger won the transition.
//
// Usage:
//
//	var call model.Call
//	err := r.db.GetContext(ctx, &call, query, args...)
//	return HandleNotFound(&call, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
