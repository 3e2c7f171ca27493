package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func tracer() trace.Tracer {
	return otel.Tracer("soundbay")
}

// TraceTranscodeJob spans one run of the transcode pipeline
func TraceTranscodeJob(ctx context.Context, jobID, trackID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "transcode.job",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("track.id", trackID),
		),
	)
}

// TraceTranscodeStep spans a single stage inside a job (transcode, probe, waveform, upload)
func TraceTranscodeStep(ctx context.Context, step string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "transcode."+step)
}

func TraceUpload(ctx context.Context, userID, format string, size int64) (context.Context, trace.Span) {
	return tracer().Start(ctx, "track.upload",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("audio.format", format),
			attribute.Int64("audio.size_bytes", size),
		),
	)
}

func TraceModeration(ctx context.Context, trackID, action string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "moderation."+action,
		trace.WithAttributes(attribute.String("track.id", trackID)),
	)
}

// TraceSocial spans like, repost, follow and comment actions
func TraceSocial(ctx context.Context, action, actorID, targetID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "social."+action,
		trace.WithAttributes(
			attribute.String("user.id", actorID),
			attribute.String("target.id", targetID),
		),
	)
}

func TraceSearch(ctx context.Context, kind, query string, fallback bool) (context.Context, trace.Span) {
	return tracer().Start(ctx, "search."+kind,
		trace.WithAttributes(
			attribute.String("search.query", query),
			attribute.Bool("search.fallback", fallback),
		),
	)
}
