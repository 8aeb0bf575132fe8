package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/deferlink/internal/crypto"
)

// AuthUnary rejects calls whose bearer credential does not equal apiKey.
// An empty apiKey disables the check.
func AuthUnary(apiKey string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if apiKey == "" {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil || !crypto.VerifyAPIKey(tok, apiKey) {
			return nil, status.Error(codes.Unauthenticated, "bad api key")
		}
		return next(ctx, req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
