package commands

import (
	"database/sql"

	"github.com/siftlab/sift/config"
	"github.com/siftlab/sift/db"
	"github.com/siftlab/sift/errors"
	"github.com/siftlab/sift/logger"
)

// openDatabase opens and migrates the database, resolving the path from
// configuration unless overridden
func openDatabase(path string) (*sql.DB, error) {
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		path = cfg.Database.Path
	}
	if path == "" {
		path = "sift.db"
	}

	database, err := db.Open(path, logger.Logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
