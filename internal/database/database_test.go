package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"testing/fstest"
	"time"

	"pivot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := Open(sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)

	require.NoError(t, configurePool(db, &config.Config{DBDriver: "sqlite"}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, configurePool(db, &config.Config{DBDriver: "postgres", DBConnMaxLifetimeMinutes: 15}))
	assert.Equal(t, 25, sqlDB.Stats().MaxOpenConnections)
}

func TestAutoMigrate_CreatesEveryTable(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"users", "groups", "posts", "comments", "follows", "auth_tokens"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(&config.Config{DBHost: "db", DBPort: "5432", DBUser: "pivot", DBName: "pivot"})
	assert.Equal(t, "host=db port=5432 user=pivot dbname=pivot sslmode=disable", dsn)

	dsn = postgresDSN(&config.Config{DBHost: "db", DBPassword: "s3cret", DBSSLMode: "require"})
	assert.Equal(t, "host=db password=s3cret sslmode=require", dsn)
}

func TestEmbeddedMigrations(t *testing.T) {
	require.NotEmpty(t, Embedded)
	first := Embedded[0]
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "000001_init", first.String())
	assert.Contains(t, first.Up, "CREATE TABLE IF NOT EXISTS follows")
	assert.Contains(t, first.Down, "DROP TABLE IF EXISTS follows")
}

func TestParseMigrations(t *testing.T) {
	t.Run("pairs, sorts and skips other files", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/000002_second.up.sql":   {Data: []byte("B")},
			"m/000002_second.down.sql": {Data: []byte("b")},
			"m/000001_first.up.sql":    {Data: []byte("A")},
			"m/000001_first.down.sql":  {Data: []byte("a")},
			"m/notes.up.sql":           {Data: []byte("ignored")},
			"m/README.md":              {Data: []byte("ignored")},
		}
		got, err := ParseMigrations(fsys, "m")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "first", got[0].Name)
		assert.Equal(t, "A", got[0].Up)
		assert.Equal(t, "b", got[1].Down)
	})

	t.Run("missing down script", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/000001_first.up.sql": {Data: []byte("A")},
		}
		_, err := ParseMigrations(fsys, "m")
		assert.ErrorContains(t, err, "000001_first")
	})
}

func TestMigrator_UpAndDown(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	m := NewMigrator(db, []Migration{
		{Version: 1, Name: "widgets", Up: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)", Down: "DROP TABLE widgets"},
		{Version: 2, Name: "gadgets", Up: "CREATE TABLE gadgets (id INTEGER PRIMARY KEY)", Down: "DROP TABLE gadgets"},
	})

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, db.Migrator().HasTable("widgets"))

	applied, err = m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	require.NoError(t, m.Down(ctx, 2))
	assert.False(t, db.Migrator().HasTable("gadgets"))
	assert.Error(t, m.Down(ctx, 2))
	assert.Error(t, m.Down(ctx, 42))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "gadgets", pending[0].Name)
}

func TestMigrator_RefusesUnknownVersions(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	full := []Migration{
		{Version: 1, Name: "a", Up: "CREATE TABLE a (id INTEGER)", Down: "DROP TABLE a"},
		{Version: 7, Name: "b", Up: "CREATE TABLE b (id INTEGER)", Down: "DROP TABLE b"},
	}
	_, err := NewMigrator(db, full).Up(ctx)
	require.NoError(t, err)

	_, err = NewMigrator(db, full[:1]).Up(ctx)
	assert.ErrorContains(t, err, "000007")
}

func TestPlanSchema(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		wantSQL  bool
		wantAuto bool
		wantErr  bool
	}{
		{"sqlite always auto", config.Config{DBDriver: "sqlite", DBSchemaMode: "sql"}, false, true, false},
		{"hybrid dev", config.Config{DBDriver: "postgres", Env: "development"}, true, true, false},
		{"hybrid prod", config.Config{DBDriver: "postgres", Env: "production", DBSchemaMode: "hybrid"}, true, false, false},
		{"sql only", config.Config{DBDriver: "postgres", DBSchemaMode: "SQL"}, true, false, false},
		{"auto refused in prod", config.Config{DBDriver: "postgres", Env: "prod", DBSchemaMode: "auto"}, false, false, true},
		{"unknown mode", config.Config{DBDriver: "postgres", DBSchemaMode: "yolo"}, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanSchema(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, plan.SQL)
			assert.Equal(t, tt.wantAuto, plan.Auto)
		})
	}
}

func TestStatus_SQLiteSkipsMigrations(t *testing.T) {
	db := openSQLite(t)
	status, err := Status(context.Background(), db, &config.Config{DBDriver: "sqlite", Env: "development"})
	require.NoError(t, err)
	assert.True(t, status.Auto)
	assert.False(t, status.SQL)
	assert.Nil(t, status.Pending)
}

func TestGormLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()
	fc := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now(), fc, errors.New("syntax error"))
	assert.Contains(t, buf.String(), "sql query failed")

	buf.Reset()
	l.Trace(ctx, time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "slow sql query")

	buf.Reset()
	l.LogMode(logger.Silent).Trace(ctx, time.Now(), fc, errors.New("ignored"))
	assert.Empty(t, buf.String())
}
