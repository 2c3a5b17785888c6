package interceptors

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/arklim/marketplace-auth/internal/infra/logger"
)

// UnaryLogging writes one access log line per unary call, mirroring the HTTP access log.
func UnaryLogging(log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, log, info.FullMethod, start, err)
		return resp, err
	}
}

func logCall(ctx context.Context, log *zap.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("latency", time.Since(start)),
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		host, _, splitErr := net.SplitHostPort(p.Addr.String())
		if splitErr != nil {
			host = p.Addr.String()
		}
		fields = append(fields, zap.String("client_ip", logger.MaskIP(host)))
	}

	switch code {
	case codes.OK:
		log.Debug("rpc completed", fields...)
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		log.Error("rpc failed", append(fields, zap.Error(err))...)
	default:
		log.Info("rpc completed", append(fields, zap.Error(err))...)
	}
}
