package mapper

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/exporter/pkg/export"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// URNAttribute holds the target locator of a reference record.
const URNAttribute = "urn"

var (
	errNoURN         = errors.New("reference has no urn attribute")
	errNoResolver    = errors.New("no resolver configured")
	errCycle         = errors.New("reference cycle")
	errDepthExceeded = errors.New("maximum follow depth exceeded")
)

// follow resolves a reference and maps its target into res. Every failure
// becomes a warning; the referencing record itself never fails.
func (m *Mapper) follow(ctx context.Context, ref *export.RawRecord, opts export.Options, res *Result, depth int, visited map[string]bool) {
	urn, _ := ref.Attributes[URNAttribute].(string)
	warn := func(cause error) {
		m.logger.Debug("reference not followed",
			"record_id", ref.ID,
			"urn", urn,
			"error", cause,
		)
		res.Warnings = append(res.Warnings, export.NewReferenceResolutionError(urn, cause))
	}

	if urn == "" {
		warn(errNoURN)
		return
	}

	maxDepth := opts.MaxFollowDepth
	if maxDepth <= 0 {
		maxDepth = export.DefaultMaxFollowDepth
	}
	if depth >= maxDepth {
		warn(errDepthExceeded)
		return
	}
	if visited[urn] {
		warn(errCycle)
		return
	}
	visited[urn] = true

	if m.resolver == nil {
		warn(errNoResolver)
		return
	}

	timeout := opts.FollowTimeout
	if timeout <= 0 {
		timeout = export.DefaultFollowTimeout
	}

	ctx, span := m.tracer.Start(ctx, "export.follow",
		trace.WithAttributes(
			attribute.String("export.urn", urn),
			attribute.Int("export.follow_depth", depth),
		),
	)
	defer span.End()

	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target, err := m.resolver.Resolve(lookupCtx, urn)
	if err == nil && target == nil {
		err = export.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		warn(err)
		return
	}

	resolved := *target
	if resolved.Client.URN == "" {
		resolved.Client = ref.Client
	}
	if resolved.SourceURN == "" {
		resolved.SourceURN = ref.SourceURN
	}

	if err := m.mapInto(ctx, &resolved, opts, res, depth+1, visited); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		warn(fmt.Errorf("target %s: %w", resolved.Kind, err))
	}
}
