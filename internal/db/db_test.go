package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type uniqueRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestIsUniqueViolation(t *testing.T) {
	conn, err := Open(DriverSQLite, "file:unique_test?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&uniqueRow{}))

	require.NoError(t, conn.Create(&uniqueRow{Name: "general"}).Error)
	err = conn.Create(&uniqueRow{Name: "general"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("disk I/O error")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
}

func TestSqliteFilePath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"data/chat.db", "data/chat.db"},
		{"file:data/chat.db?_pragma=busy_timeout(5000)", "data/chat.db"},
		{":memory:", ""},
		{"file:x?mode=memory&cache=shared", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sqliteFilePath(tt.dsn), tt.dsn)
	}
}
