package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tp)
}

type widget struct {
	ID   uint
	Name string
}

func TestGORMTracingPlugin(t *testing.T) {
	rec := withRecorder(t)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Use(GORMTracingPlugin()))
	require.NoError(t, db.AutoMigrate(&widget{}))

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&widget{Name: "a"}).Error)
	var got widget
	require.NoError(t, db.WithContext(ctx).First(&got).Error)

	names := map[string]bool{}
	for _, s := range rec.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names["db.insert"])
	assert.True(t, names["db.select"])
}

func TestTraceHelpers(t *testing.T) {
	rec := withRecorder(t)

	_, span := TraceTranscodeJob(context.Background(), "job-1", "track-1")
	RecordError(span, errors.New("boom"))
	span.End()

	_, span = TraceExternalCall(context.Background(), "s3", "put_object")
	RecordError(span, nil)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "transcode.job", ended[0].Name())
	assert.Equal(t, "s3.put_object", ended[1].Name())
}
