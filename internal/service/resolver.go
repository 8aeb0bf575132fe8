// Package service contains the attribution resolver.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/and161185/deferlink/internal/crypto"
	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
	"github.com/and161185/deferlink/internal/normalize"
	"github.com/and161185/deferlink/internal/referrer"
	"github.com/and161185/deferlink/internal/retry"
	"github.com/and161185/deferlink/internal/transport"
)

const tracerName = "github.com/and161185/deferlink/internal/service"

// Attempt results reported to the Recorder.
const (
	AttemptOK        = "ok"
	AttemptTerminal  = "terminal"
	AttemptExhausted = "exhausted"
	AttemptCanceled  = "canceled"
	AttemptError     = "error"
)

// AttributionService resolves deferred attribution for a fresh install.
type AttributionService interface {
	// Resolve runs one resolution. It never panics and never returns an error:
	// every failure is folded into the Outcome.
	Resolve(ctx context.Context) model.Outcome
}

// FingerprintCollector snapshots the device.
type FingerprintCollector interface {
	Collect(ctx context.Context) model.DeviceFingerprint
}

// Retrier runs a single network operation under the retry policy.
type Retrier interface {
	Do(ctx context.Context, op retry.Operation) ([]byte, error)
}

// Recorder receives resolution metrics.
type Recorder interface {
	ObserveAttempt(strategy, result string)
	ObserveOutcome(reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string) {}
func (nopRecorder) ObserveOutcome(string)         {}

type AttributionServiceImpl struct {
	matcher   transport.LinkMatcher
	source    referrer.Source
	collector FingerprintCollector
	retrier   Retrier

	rec    Recorder
	log    *zap.Logger
	tracer trace.Tracer
}

var _ AttributionService = (*AttributionServiceImpl)(nil)

// Option configures AttributionServiceImpl.
type Option func(*AttributionServiceImpl)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *AttributionServiceImpl) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *AttributionServiceImpl) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *AttributionServiceImpl) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewAttributionService constructs the resolver. A nil source disables the
// deterministic strategy (platforms without an install referrer).
func NewAttributionService(matcher transport.LinkMatcher, source referrer.Source, collector FingerprintCollector, retrier Retrier, opts ...Option) *AttributionServiceImpl {
	s := &AttributionServiceImpl{
		matcher:   matcher,
		source:    source,
		collector: collector,
		retrier:   retrier,
		rec:       nopRecorder{},
		log:       zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Resolve tries the referrer first, then the fingerprint, then applies the confidence gate.
func (s *AttributionServiceImpl) Resolve(ctx context.Context) (out model.Outcome) {
	ctx, span := s.tracer.Start(ctx, "attribution.resolve")
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("resolver panic", zap.Any("reason", r), zap.ByteString("stack", debug.Stack()))
			out = model.Outcome{Kind: model.OutcomeNoMatch, Err: fmt.Errorf("resolver panic: %v", r)}
		}
		reason := out.Reason()
		span.SetAttributes(attribute.String("deferlink.outcome", reason))
		if out.Err != nil {
			span.RecordError(out.Err)
			if reason != model.ReasonNoMatch {
				span.SetStatus(codes.Error, reason)
			}
		}
		span.End()
		s.rec.ObserveOutcome(reason)
		s.logOutcome(out)
	}()

	var refErr error
	if s.source != nil {
		res, err := s.tryReferrer(ctx)
		switch {
		case err == nil && res.Matched:
			if c, ok := s.source.(referrer.Consumer); ok {
				c.Consume()
			}
			return model.Outcome{Kind: model.OutcomeAccepted, Result: &res}
		case ctx.Err() != nil:
			return model.Outcome{Kind: model.OutcomeNoMatch, Err: ctx.Err()}
		case errors.Is(err, errs.ErrExhausted):
			refErr = err
			s.log.Warn("referrer lookup exhausted, falling back to fingerprint", zap.Error(err))
		case err != nil:
			s.log.Debug("referrer path skipped", zap.Error(err))
		default:
			s.log.Debug("referrer lookup found no match")
		}
	}

	if err := ctx.Err(); err != nil {
		return model.Outcome{Kind: model.OutcomeNoMatch, Err: err}
	}

	res, err := s.tryFingerprint(ctx)
	switch {
	case ctx.Err() != nil:
		return model.Outcome{Kind: model.OutcomeNoMatch, Err: ctx.Err()}
	case errors.Is(err, errs.ErrExhausted):
		return model.Outcome{Kind: model.OutcomeExhausted, Err: errors.Join(err, refErr)}
	case errs.IsTerminal(err):
		return model.Outcome{Kind: model.OutcomeNoMatch}
	case err != nil:
		return model.Outcome{Kind: model.OutcomeNoMatch, Err: err}
	}
	return gate(res)
}

// gate applies the acceptance policy to a normalized fingerprint result.
func gate(res model.MatchResult) model.Outcome {
	switch {
	case !res.Matched:
		return model.Outcome{Kind: model.OutcomeNoMatch}
	case res.Acceptable():
		return model.Outcome{Kind: model.OutcomeAccepted, Result: &res}
	default:
		return model.Outcome{Kind: model.OutcomeRejected, Result: &res}
	}
}

func (s *AttributionServiceImpl) tryReferrer(ctx context.Context) (model.MatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "attribution.referrer")
	defer span.End()

	token, ok, err := s.referrerToken(ctx)
	if err != nil {
		return model.Unmatched(model.MethodReferrer), fmt.Errorf("%w: %w", errs.ErrNoReferrer, err)
	}
	if !ok {
		return model.Unmatched(model.MethodReferrer), errs.ErrNoReferrer
	}
	span.SetAttributes(attribute.String("deferlink.token_digest", crypto.TokenDigest(token)))
	s.log.Debug("referrer token present", zap.String("token_digest", crypto.TokenDigest(token)))

	raw, err := s.retrier.Do(ctx, func(actx context.Context) ([]byte, error) {
		return s.matcher.LookupByReferrer(actx, token)
	})
	s.rec.ObserveAttempt(string(model.MethodReferrer), attemptResult(ctx, err))
	if err != nil {
		return model.Unmatched(model.MethodReferrer), err
	}
	res := normalize.Normalize(raw, model.MethodReferrer)
	span.SetAttributes(attribute.Bool("deferlink.matched", res.Matched))
	return res, nil
}

// referrerToken isolates source failures so they degrade to the fingerprint path.
func (s *AttributionServiceImpl) referrerToken(ctx context.Context) (token string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("referrer source panic", zap.Any("reason", r))
			token, ok, err = "", false, fmt.Errorf("referrer source panic: %v", r)
		}
	}()
	return s.source.ReferrerToken(ctx)
}

func (s *AttributionServiceImpl) tryFingerprint(ctx context.Context) (model.MatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "attribution.fingerprint")
	defer span.End()

	fp := s.collector.Collect(ctx)
	span.SetAttributes(attribute.String("deferlink.platform", string(fp.Platform)))

	raw, err := s.retrier.Do(ctx, func(actx context.Context) ([]byte, error) {
		return s.matcher.MatchByFingerprint(actx, fp)
	})
	s.rec.ObserveAttempt(string(model.MethodFingerprint), attemptResult(ctx, err))
	if err != nil {
		return model.Unmatched(model.MethodFingerprint), err
	}
	res := normalize.Normalize(raw, model.MethodFingerprint)
	span.SetAttributes(
		attribute.Bool("deferlink.matched", res.Matched),
		attribute.String("deferlink.confidence", string(res.Confidence)),
		attribute.Int("deferlink.score", res.Score),
	)
	return res, nil
}

func attemptResult(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return AttemptOK
	case ctx.Err() != nil:
		return AttemptCanceled
	case errs.IsTerminal(err):
		return AttemptTerminal
	case errors.Is(err, errs.ErrExhausted):
		return AttemptExhausted
	}
	return AttemptError
}

func (s *AttributionServiceImpl) logOutcome(out model.Outcome) {
	fields := []zap.Field{zap.String("outcome", out.Reason())}
	if out.Result != nil {
		fields = append(fields,
			zap.String("method", string(out.Result.Method)),
			zap.String("confidence", string(out.Result.Confidence)),
			zap.Int("score", out.Result.Score),
			zap.String("link_id", out.Result.LinkID),
		)
	}
	switch out.Kind {
	case model.OutcomeRejected:
		s.log.Info("match rejected by confidence gate", fields...)
	case model.OutcomeExhausted:
		s.log.Warn("attribution unresolved", append(fields, zap.Error(out.Err))...)
	default:
		if out.Err != nil {
			fields = append(fields, zap.Error(out.Err))
		}
		s.log.Info("attribution resolved", fields...)
	}
}
