package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/store"
	"github.com/hrygo/dispatchcore/store/db/file"
	"github.com/hrygo/dispatchcore/store/db/memory"
	"github.com/hrygo/dispatchcore/store/db/postgres"
	"github.com/hrygo/dispatchcore/store/db/redis"
	"github.com/hrygo/dispatchcore/store/db/sqlite"
)

// NewDBDriver creates the storage driver selected by profile.Driver.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "memory", "":
		driver = memory.NewDB()
	case "file":
		driver, err = file.NewDB(profile)
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	case "redis":
		driver, err = redis.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s driver", profile.Driver)
	}

	return driver, nil
}
