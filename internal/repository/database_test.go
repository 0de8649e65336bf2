package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
)

// newMockDB opens gorm over sqlmock through the postgres dialector
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	dialector := postgres.New(postgres.Config{Conn: conn, DriverName: "postgres"})
	db, err := OpenDialector(dialector, config.DatabaseConfig{MaxOpenConns: 5, MaxIdleConns: 2, ConnMaxLifetime: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	return db, mock
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql", URL: "x"}, zap.NewNop())
	assert.Error(t, err)
}

func TestRiverRepositoryPostgres(t *testing.T) {
	t.Run("get found", func(t *testing.T) {
		db, mock := newMockDB(t)
		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at", "name", "state", "usgs_gauge_id"}).
			AddRow("r-1", now, now, "Arkansas River", "CO", "07091200")

		mock.ExpectQuery(`SELECT \* FROM "rivers" WHERE id = \$1`).
			WithArgs("r-1", 1).
			WillReturnRows(rows)

		river, err := NewRiverRepository(db).Get(context.Background(), "r-1")
		require.NoError(t, err)
		assert.Equal(t, "Arkansas River", river.Name)
		require.NotNil(t, river.USGSGaugeID)
		assert.Equal(t, "07091200", *river.USGSGaugeID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get missing maps to not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT \* FROM "rivers" WHERE id = \$1`).
			WithArgs("nope", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := NewRiverRepository(db).Get(context.Background(), "nope")
		assert.ErrorIs(t, err, entities.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver errors pass through", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT \* FROM "rivers"`).WillReturnError(errors.New("connection reset"))

		_, err := NewRiverRepository(db).Get(context.Background(), "r-1")
		require.Error(t, err)
		assert.False(t, errors.Is(err, entities.ErrNotFound))
	})
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil, "River"))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound, "River"), entities.ErrNotFound)
	assert.ErrorIs(t, translate(gorm.ErrDuplicatedKey, "River"), entities.ErrConflict)
	assert.ErrorIs(t, translate(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, "River"), entities.ErrConflict)
	assert.ErrorIs(t, translate(errors.New(`ERROR: duplicate key value violates unique constraint "idx_rivers_aw_id" (SQLSTATE 23505)`), "River"), entities.ErrConflict)

	other := errors.New("boom")
	assert.Equal(t, other, translate(other, "River"))
}
