package telemetry

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanInstanceKey  = "otel:span"
	startInstanceKey = "otel:start"
	maxStatementLen  = 500
)

// GORMTracingPlugin returns a GORM plugin that opens one span per statement
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{tracer: otel.Tracer("gorm")}
}

type tracingPlugin struct {
	tracer trace.Tracer
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	before := []error{
		cb.Query().Before("gorm:query").Register("telemetry:before_query", p.before("SELECT")),
		cb.Create().Before("gorm:create").Register("telemetry:before_create", p.before("INSERT")),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", p.before("UPDATE")),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", p.before("DELETE")),
		cb.Row().Before("gorm:row").Register("telemetry:before_row", p.before("SELECT")),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", p.before("RAW")),
	}
	after := []error{
		cb.Query().After("gorm:query").Register("telemetry:after_query", p.endSpan),
		cb.Create().After("gorm:create").Register("telemetry:after_create", p.endSpan),
		cb.Update().After("gorm:update").Register("telemetry:after_update", p.endSpan),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", p.endSpan),
		cb.Row().After("gorm:row").Register("telemetry:after_row", p.endSpan),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", p.endSpan),
	}
	for _, err := range append(before, after...) {
		if err != nil {
			return fmt.Errorf("failed to register tracing callback: %w", err)
		}
	}
	return nil
}

func (p *tracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		p.startSpan(db, operation)
	}
}

func (p *tracingPlugin) startSpan(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}

	ctx, span := p.tracer.Start(ctx, "db."+strings.ToLower(operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", db.Dialector.Name()),
			attribute.String("db.table", table),
			attribute.String("db.operation", operation),
		),
	)
	db.Statement.Context = ctx
	db.InstanceSet(spanInstanceKey, span)
	db.InstanceSet(startInstanceKey, time.Now())
}

func (p *tracingPlugin) endSpan(db *gorm.DB) {
	raw, ok := db.InstanceGet(spanInstanceKey)
	if !ok {
		return
	}
	span, ok := raw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if startRaw, ok := db.InstanceGet(startInstanceKey); ok {
		if start, ok := startRaw.(time.Time); ok {
			span.SetAttributes(attribute.Int64("db.duration_ms", time.Since(start).Milliseconds()))
		}
	}

	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > maxStatementLen {
			sql = sql[:maxStatementLen] + "... (truncated)"
		}
		span.SetAttributes(attribute.String("db.statement", sql))
	}
	if db.RowsAffected > 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
