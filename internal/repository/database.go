// Package repository provides data access implementations
package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/logger"
)

// Models lists every table managed by Migrate, parents first
func Models() []any {
	return []any{
		&entities.User{},
		&entities.River{},
		&entities.RiverCondition{},
		&entities.Hazard{},
		&entities.GearDeal{},
		&entities.DealFilter{},
		&entities.DealFilterMatch{},
		&entities.PushSubscription{},
		&entities.UserRiver{},
		&entities.ScrapeLog{},
		&entities.NotificationPreference{},
		&entities.AlertLog{},
		&entities.Trip{},
		&entities.TripStop{},
		&entities.RiverReview{},
		&entities.PasswordResetToken{},
	}
}

// Open connects to the configured database and checks the connection
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.URL)
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(cfg.URL))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := OpenDialector(dialector, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Driver != "postgres" && isMemory(cfg.URL) {
		// every connection to :memory: is a separate database
		sqlDB, _ := db.DB()
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("Database connected", zap.String("driver", db.Dialector.Name()))
	return db, nil
}

// OpenDialector opens a gorm DB over an existing dialector and applies pool settings
func OpenDialector(dialector gorm.Dialector, cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(log, logger.GormLevel(cfg.LogLevel)),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func sqliteDSN(url string) string {
	url = strings.TrimPrefix(url, "sqlite://")
	url = strings.TrimPrefix(url, "file:")
	if strings.Contains(url, "?") {
		return "file:" + url
	}
	if isMemory(url) {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	return "file:" + url + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

func isMemory(url string) bool {
	return strings.Contains(url, ":memory:") || strings.Contains(url, "mode=memory")
}

// isUniqueViolation reports whether err is a unique constraint failure on
// either supported driver
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}

// translate maps driver errors onto domain errors
func translate(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return entities.NotFound(resource)
	case isUniqueViolation(err):
		return entities.NewDomainError(entities.CodeConflict, resource+" already exists")
	}
	return err
}

// Page is a normalised page request
type Page struct {
	Number int
	Size   int
}

// Pagination bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPageNumber   = 100000
)

// NewPage clamps page to 1..MaxPageNumber and size to 1..MaxPageSize; size 0
// means default
func NewPage(number, size int) Page {
	switch {
	case number < 1:
		number = 1
	case number > MaxPageNumber:
		number = MaxPageNumber
	}
	switch {
	case size == 0:
		size = DefaultPageSize
	case size < 1:
		size = 1
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	p = NewPage(p.Number, p.Size)
	return db.Offset(p.Offset()).Limit(p.Size)
}
