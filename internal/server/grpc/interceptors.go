package grpcserver

import (
	"context"
	"path"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/deferlink/internal/convert"
	"github.com/and161185/deferlink/internal/metrics"
)

// requestID returns the caller's x-request-id, or "" when absent.
func requestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(convert.MetadataRequestID); len(v) > 0 {
		return v[0]
	}
	return ""
}

// callLevel logs expected lookup results at info and everything else at warn.
func callLevel(c codes.Code) zapcore.Level {
	switch c {
	case codes.OK, codes.NotFound:
		return zapcore.InfoLevel
	default:
		return zapcore.WarnLevel
	}
}

// LoggingUnary logs one line per match call. Request payloads carry device
// data and referrer tokens, so only call metadata is written.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		fields := []zap.Field{
			zap.String("rpc", path.Base(info.FullMethod)),
			zap.String("code", code.String()),
			zap.String("request_id", requestID(ctx)),
			zap.Duration("dur", time.Since(start)),
		}
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			fields = append(fields, zap.String("peer", p.Addr.String()))
		}
		if ce := log.Check(callLevel(code), "match call"); ce != nil {
			ce.Write(fields...)
		}
		return resp, err
	}
}

// MetricsUnary counts requests by method and status code.
func MetricsUnary(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		resp, err := next(ctx, req)
		m.ObserveRequest(path.Base(info.FullMethod), status.Code(err).String())
		return resp, err
	}
}

// RecoverUnary turns a fixture handler panic into codes.Internal so the
// client classifies it as a retryable 5xx.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("match handler panicked",
					zap.String("rpc", path.Base(info.FullMethod)),
					zap.String("request_id", requestID(ctx)),
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
				)
				resp, err = nil, status.Error(codes.Internal, "stub backend failure")
			}
		}()
		return next(ctx, req)
	}
}
