package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type tracedBorrower struct {
	ID       uint   `gorm:"primaryKey"`
	FullName string `gorm:"size:100"`
}

func setupTracedDB(t *testing.T, cfg DBTracingConfig) (*gorm.DB, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	cfg.TracerProvider = tp

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedBorrower{}))
	require.NoError(t, db.Use(NewDBTracingPlugin(cfg, zap.NewNop())))
	return db, recorder
}

func spanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThreshold)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db, recorder := setupTracedDB(t, DefaultDBTracingConfig())

	require.NoError(t, db.WithContext(t.Context()).Create(&tracedBorrower{FullName: "Ada"}).Error)
	assert.Empty(t, recorder.Ended())
}

func TestDBTracingPlugin_StatementSpans(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.DBSystem = "sqlite"
	db, recorder := setupTracedDB(t, cfg)

	require.NoError(t, db.WithContext(t.Context()).Create(&tracedBorrower{FullName: "Grace Hopper"}).Error)
	var got []tracedBorrower
	require.NoError(t, db.WithContext(t.Context()).Find(&got).Error)
	require.Len(t, got, 1)

	spans := recorder.Ended()
	create := spanByName(spans, "gorm.Create")
	require.NotNil(t, create)
	attrs := attrMap(create)
	assert.NotContains(t, attrs["db.statement"].AsString(), "Grace Hopper")
	assert.Equal(t, "traced_borrowers", attrs["db.sql.table"].AsString())
	_, slow := attrs["db.slow_query"]
	assert.False(t, slow)

	assert.NotNil(t, spanByName(spans, "gorm.Query"))
}

func TestDBTracingPlugin_FullSQL(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.LogFullSQL = true
	db, recorder := setupTracedDB(t, cfg)

	require.NoError(t, db.WithContext(t.Context()).Create(&tracedBorrower{FullName: "Grace Hopper"}).Error)

	create := spanByName(recorder.Ended(), "gorm.Create")
	require.NotNil(t, create)
	assert.Contains(t, attrMap(create)["db.statement"].AsString(), "Grace Hopper")
}

func TestDBTracingPlugin_SlowQuery(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.SlowQueryThreshold = time.Nanosecond
	db, recorder := setupTracedDB(t, cfg)

	require.NoError(t, db.WithContext(t.Context()).Create(&tracedBorrower{FullName: "Ada"}).Error)

	create := spanByName(recorder.Ended(), "gorm.Create")
	require.NotNil(t, create)
	assert.True(t, attrMap(create)["db.slow_query"].AsBool())
	var warned bool
	for _, ev := range create.Events() {
		if ev.Name == "slow_query_warning" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestDBTracingPlugin_ErrorMarksSpan(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	db, recorder := setupTracedDB(t, cfg)

	err := db.WithContext(t.Context()).Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)

	raw := spanByName(recorder.Ended(), "gorm.Raw")
	require.NotNil(t, raw)
	assert.Equal(t, codes.Error, raw.Status().Code)
}
