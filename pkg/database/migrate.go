package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migration is one versioned schema or data change applied after AutoMigrate.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *gorm.DB) error
}

// SchemaMigration records an applied migration.
type SchemaMigration struct {
	Version     int    `gorm:"primaryKey;autoIncrement:false"`
	Description string `gorm:"size:255"`
	AppliedAt   time.Time
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

// Migrator 数据库初始化器: AutoMigrate + versioned migrations, run once at startup.
type Migrator struct {
	db         *gorm.DB
	models     []interface{}
	migrations []Migration
	log        *zap.Logger
}

// NewMigrator creates a migrator for the given models and migrations.
func NewMigrator(db *gorm.DB, models []interface{}, migrations []Migration, log *zap.Logger) *Migrator {
	if log == nil {
		log = zap.NewNop()
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{db: db, models: models, migrations: sorted, log: log}
}

// Run creates or updates the tables and applies pending migrations in version
// order, each inside its own transaction.
func (m *Migrator) Run(ctx context.Context) error {
	start := time.Now()
	db := m.db.WithContext(ctx)

	if err := db.AutoMigrate(append([]interface{}{&SchemaMigration{}}, m.models...)...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	var applied []SchemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}

	count := 0
	for _, mig := range m.migrations {
		if done[mig.Version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if mig.Up != nil {
				if err := mig.Up(tx); err != nil {
					return err
				}
			}
			return tx.Create(&SchemaMigration{
				Version:     mig.Version,
				Description: mig.Description,
				AppliedAt:   time.Now(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Description, err)
		}
		m.log.Info("[DB] migration applied", zap.Int("version", mig.Version), zap.String("description", mig.Description))
		count++
	}

	m.log.Info("[DB] schema ready",
		zap.Int("tables", len(m.models)),
		zap.Int("migrations_applied", count),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Migrate is a shortcut for NewMigrator(...).Run.
func Migrate(ctx context.Context, db *gorm.DB, models []interface{}, migrations []Migration, log *zap.Logger) error {
	return NewMigrator(db, models, migrations, log).Run(ctx)
}
