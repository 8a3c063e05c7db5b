package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/madpools/calcutta/calcutta/database/models"
)

// wrapNotFound normalizes driver-level no-rows errors onto the store
// contract.
func wrapNotFound(err error, what string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(what, args...), models.ErrNotFound)
	}
	return err
}
