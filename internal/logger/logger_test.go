package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	t.Run("stdout json", func(t *testing.T) {
		log, err := New(Config{Level: "debug", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ww.log")
		log, err := New(Config{Level: "warn", Format: "console", Output: path})
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.FileExists(t, path)
	})

	t.Run("unwritable file", func(t *testing.T) {
		_, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "ww.log")})
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))

	fallback := zap.NewNop()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := zap.NewExample()
	assert.Same(t, scoped, FromContext(WithLogger(ctx, scoped), fallback))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"client error", http.StatusNotFound, zapcore.WarnLevel},
		{"server error", http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			r := gin.New()
			r.Use(func(c *gin.Context) { c.Set(RequestIDKey, "abc"); c.Next() })
			r.Use(GinMiddleware(zap.New(core)))
			r.GET("/x", func(c *gin.Context) {
				assert.NotNil(t, FromGin(c))
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?q=1", nil))

			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			fields := logs[0].ContextMap()
			assert.Equal(t, "abc", fields["request_id"])
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, "q=1", fields["query"])
		})
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "An internal error occurred")
	assert.NotContains(t, w.Body.String(), "boom")
	require.Len(t, recorded.All(), 1)
	assert.Equal(t, "Panic recovered", recorded.All()[0].Message)
}

func TestGormLogger(t *testing.T) {
	sql := func() (string, int64) { return "SELECT 1", 1 }

	t.Run("log mode copies", func(t *testing.T) {
		gl := NewGormLogger(zap.NewNop(), gormlogger.Info)
		other, ok := gl.LogMode(gormlogger.Error).(*GormLogger)
		require.True(t, ok)
		assert.Equal(t, gormlogger.Info, gl.level)
		assert.Equal(t, gormlogger.Error, other.level)
	})

	t.Run("record not found is ignored by default", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn)
		gl.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
		assert.Empty(t, recorded.All())

		gl = NewGormLogger(zap.New(core), gormlogger.Warn, WithRecordNotFound())
		gl.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
		assert.Len(t, recorded.All(), 1)
	})

	t.Run("errors carry the request id", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Error)
		gl.Trace(WithRequestID(context.Background(), "r-9"), time.Now(), sql, errors.New("db down"))

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, "SQL Error", logs[0].Message)
		assert.Equal(t, "r-9", logs[0].ContextMap()["request_id"])
	})

	t.Run("statements go to the scoped logger", func(t *testing.T) {
		base, baseLogs := observer.New(zapcore.DebugLevel)
		core, recorded := observer.New(zapcore.DebugLevel)
		reqLog := zap.New(core).With(zap.String("request_id", "r-12"), zap.String("path", "/api/rivers"))
		ctx := WithLogger(context.Background(), reqLog)

		gl := NewGormLogger(zap.New(base), gormlogger.Info)
		gl.Trace(ctx, time.Now(), func() (string, int64) { return "  select * from rivers", 3 }, nil)

		assert.Empty(t, baseLogs.All())
		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, "gorm", logs[0].LoggerName)
		fields := logs[0].ContextMap()
		assert.Equal(t, "r-12", fields["request_id"])
		assert.Equal(t, "/api/rivers", fields["path"])
		assert.Equal(t, "SELECT", fields["op"])
		assert.EqualValues(t, 3, fields["rows"])
	})

	t.Run("long statements are truncated", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Info)
		long := "INSERT INTO river_conditions (id) VALUES " + strings.Repeat("('x'),", 1000)
		gl.Trace(context.Background(), time.Now(), func() (string, int64) { return long, 1000 }, nil)

		logs := recorded.All()
		require.Len(t, logs, 1)
		logged, ok := logs[0].ContextMap()["sql"].(string)
		require.True(t, ok)
		assert.Less(t, len(logged), len(long))
		assert.True(t, strings.HasPrefix(logged, "INSERT INTO river_conditions"))
		assert.Equal(t, "INSERT", logs[0].ContextMap()["op"])
	})

	t.Run("slow queries warn", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Silent)
		gl.Trace(context.Background(), time.Now(), sql, errors.New("x"))
		gl.Info(context.Background(), "hello %s", "x")
		assert.Empty(t, recorded.All())
	})
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, GormLevel("silent"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLevel(""))
}
