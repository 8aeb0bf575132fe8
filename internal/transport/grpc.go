package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/deferlink/internal/convert"
	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
)

// GRPC calls the LinkMatch service with google.protobuf.Struct messages.
type GRPC struct {
	cc grpc.ClientConnInterface
}

var _ LinkMatcher = (*GRPC)(nil)

// NewGRPC wraps an established connection.
func NewGRPC(cc grpc.ClientConnInterface) *GRPC { return &GRPC{cc: cc} }

// LookupByReferrer invokes LookupByReferrer.
func (g *GRPC) LookupByReferrer(ctx context.Context, token string) ([]byte, error) {
	req, err := convert.ToStruct(convert.ReferrerRequest(token))
	if err != nil {
		return nil, err
	}
	return g.invoke(ctx, convert.MethodLookupByReferrer, req)
}

// MatchByFingerprint invokes MatchByFingerprint.
func (g *GRPC) MatchByFingerprint(ctx context.Context, fp model.DeviceFingerprint) ([]byte, error) {
	req, err := convert.ToStruct(convert.FingerprintRequest(fp))
	if err != nil {
		return nil, err
	}
	return g.invoke(ctx, convert.MethodMatchByFingerprint, req)
}

func (g *GRPC) invoke(ctx context.Context, method string, req *structpb.Struct) ([]byte, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, convert.MetadataRequestID, uuid.Must(uuid.NewV4()).String())
	resp := &structpb.Struct{}
	if err := g.cc.Invoke(ctx, method, req, resp); err != nil {
		return nil, fromStatus(err)
	}
	return convert.StructToJSON(resp)
}

// fromStatus maps gRPC status codes onto the HTTP classification used by the retry controller.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	}
	return &errs.StatusError{Code: HTTPStatusFromCode(st.Code()), Body: st.Message()}
}

// HTTPStatusFromCode returns the HTTP status equivalent to a gRPC code.
func HTTPStatusFromCode(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// TLSOptions selects transport security for DialGRPC.
type TLSOptions struct {
	CAPath             string // PEM bundle; empty uses system roots
	InsecureSkipVerify bool   // dev only
	Plaintext          bool   // no TLS at all (local stub)
}

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(o TLSOptions) (credentials.TransportCredentials, error) {
	if o.Plaintext {
		return insecure.NewCredentials(), nil
	}
	if o.InsecureSkipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev flag
	}
	if o.CAPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(o.CAPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// DialGRPC opens a client connection that attaches the API key as a bearer credential.
func DialGRPC(addr string, o TLSOptions, apiKey string, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds, err := loadTLS(o)
	if err != nil {
		return nil, err
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if apiKey != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: apiKey, secure: !o.Plaintext}))
	}
	opts = append(opts, extra...)
	return grpc.NewClient(addr, opts...)
}
