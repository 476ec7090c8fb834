package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the connection and serialises writers on single-file sqlite
type Database struct {
	DB     *gorm.DB
	Driver string

	writeMu sync.Mutex
}

// NewDatabase opens a connection for the configured driver
func NewDatabase(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		PrepareStmt:            cfg.Driver != "sqlite",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db, Driver: cfg.Driver}, nil
}

// NewDatabaseFromGorm wraps an open connection
func NewDatabaseFromGorm(db *gorm.DB) *Database {
	return &Database{DB: db, Driver: db.Dialector.Name()}
}

// Dialector returns the GORM dialector for cfg.Driver
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN()), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Models lists every persisted type, in dependency order
func Models() []any {
	return []any{
		&procurement.Contact{},
		&procurement.Project{},
		&procurement.PurchaseOrder{},
		&procurement.DropboxFolder{},
		&procurement.Invoice{},
		&procurement.Receipt{},
		&procurement.DetailItem{},
		&procurement.XeroBill{},
		&procurement.XeroBillLineItem{},
		&procurement.SpendMoney{},
		&procurement.BankTransaction{},
		&procurement.TaxAccount{},
		&procurement.AccountCode{},
		&procurement.TaxForm{},
		&procurement.POLog{},
		&procurement.AuditLog{},
		&fileevent.FileEvent{},
		&shared.OutboxEntry{},
	}
}

// AutoMigrate creates or updates the schema from the models
func (d *Database) AutoMigrate() error {
	return d.DB.AutoMigrate(Models()...)
}

// Write runs fn in a transaction. On sqlite the call holds the write mutex so
// concurrent workers never see "database is locked".
func (d *Database) Write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if d.Driver == "sqlite" {
		d.writeMu.Lock()
		defer d.writeMu.Unlock()
	}
	return d.DB.WithContext(ctx).Transaction(fn)
}

// SupportsSkipLocked reports whether row locks with SKIP LOCKED are available
func (d *Database) SupportsSkipLocked() bool {
	return d.Driver == "postgres" || d.Driver == "mysql"
}

// Close closes the connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks that the connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// ConnectionStats holds connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}

// Stats returns connection pool statistics
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	s := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}, nil
}

// saveEvents writes pending aggregate events to the outbox with tx
func saveEvents(ctx context.Context, saver shared.OutboxEventSaver, tx *gorm.DB, aggs ...shared.AggregateRoot) error {
	if saver == nil {
		return nil
	}
	var events []shared.DomainEvent
	for _, a := range aggs {
		events = append(events, a.GetDomainEvents()...)
	}
	if len(events) == 0 {
		return nil
	}
	if err := saver.SaveEvents(ctx, tx, events...); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}

func clearEvents(aggs ...shared.AggregateRoot) {
	for _, a := range aggs {
		a.ClearDomainEvents()
	}
}
