package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testWidget struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:64;uniqueIndex"`
}

func openTestDB(t *testing.T) *gorm.DB {
	db, err := Open(Config{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"}, nil)
	require.NoError(t, err)
	return db
}

func TestMigrate_AppliesOnce(t *testing.T) {
	db := openTestDB(t)
	runs := 0
	migrations := []Migration{
		{Version: 2, Description: "seed b", Up: func(tx *gorm.DB) error {
			runs++
			return tx.Create(&testWidget{Name: "b"}).Error
		}},
		{Version: 1, Description: "seed a", Up: func(tx *gorm.DB) error {
			runs++
			return tx.Create(&testWidget{Name: "a"}).Error
		}},
	}

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, []interface{}{&testWidget{}}, migrations, nil))
	require.NoError(t, Migrate(ctx, db, []interface{}{&testWidget{}}, migrations, nil))

	assert.Equal(t, 2, runs)

	var widgets []testWidget
	require.NoError(t, db.Order("id").Find(&widgets).Error)
	require.Len(t, widgets, 2)
	assert.Equal(t, "a", widgets[0].Name, "migrations run in version order")

	var applied int64
	db.Model(&SchemaMigration{}).Count(&applied)
	assert.Equal(t, int64(2), applied)
}

func TestMigrate_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	bad := []Migration{{Version: 1, Description: "dup", Up: func(tx *gorm.DB) error {
		if err := tx.Create(&testWidget{Name: "x"}).Error; err != nil {
			return err
		}
		return tx.Create(&testWidget{Name: "x"}).Error
	}}}

	err := Migrate(context.Background(), db, []interface{}{&testWidget{}}, bad, nil)
	assert.Error(t, err)

	var applied int64
	db.Model(&SchemaMigration{}).Count(&applied)
	assert.Zero(t, applied)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle", DSN: "x"}, nil)
	assert.Error(t, err)
}
