package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "data", "dispatch.db"), LogLevel: "silent"})
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db))
	for _, m := range []any{&model.User{}, &model.Tenant{}, &model.Membership{}, &model.FleetUnit{}, &model.Load{}, &model.RefreshToken{}} {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}
	// idempotent
	require.NoError(t, Migrate(db))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(config.DBConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")
}
