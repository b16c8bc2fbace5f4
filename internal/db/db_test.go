package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gl "gorm.io/gorm/logger"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	db, err := Open("sqlite", "file::memory:", nil)
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestLogger_Trace(t *testing.T) {
	sql := func() (string, int64) { return "SELECT 1", 1 }

	tests := []struct {
		name      string
		level     gl.LogLevel
		begin     time.Time
		err       error
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{"error is logged", gl.Warn, time.Now(), errors.New("boom"), "query failed", zapcore.ErrorLevel},
		{"record not found is ignored", gl.Warn, time.Now(), gorm.ErrRecordNotFound, "", 0},
		{"slow query warns", gl.Warn, time.Now().Add(-time.Second), nil, "slow query", zapcore.WarnLevel},
		{"fast query at warn is quiet", gl.Warn, time.Now(), nil, "", 0},
		{"info level traces every query", gl.Info, time.Now(), nil, "query", zapcore.DebugLevel},
		{"silent drops errors", gl.Silent, time.Now(), errors.New("boom"), "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			l := NewLogger(zap.New(core)).LogMode(tt.level)

			l.Trace(context.Background(), tt.begin, sql, tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, logs.Len())
				return
			}
			entries := logs.All()
			if assert.Len(t, entries, 1) {
				assert.Equal(t, tt.wantMsg, entries[0].Message)
				assert.Equal(t, tt.wantLevel, entries[0].Level)
				assert.Equal(t, "SELECT 1", entries[0].ContextMap()["sql"])
			}
		})
	}
}
