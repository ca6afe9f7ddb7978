package grpc

import (
	"context"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName имя сервиса вычислений в health-протоколе
const ServiceName = "calculator"

// NewServer создает gRPC сервер с health-сервисом. Статус ServiceName
// SERVING, пока ctx не отменен.
func NewServer(ctx context.Context) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     time.Minute,
			MaxConnectionAge:      5 * time.Minute,
			MaxConnectionAgeGrace: 20 * time.Second,
			Time:                  20 * time.Second,
			Timeout:               10 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
	}()
	return s
}

// StartServer слушает address и обслуживает запросы до остановки сервера
func StartServer(ctx context.Context, address string) (*grpc.Server, net.Addr, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, nil, err
	}

	s := NewServer(ctx)
	go func() {
		if err := s.Serve(lis); err != nil {
			log.Printf("gRPC сервер остановлен: %v", err)
		}
	}()

	log.Printf("gRPC сервер запущен на %s", lis.Addr())
	return s, lis.Addr(), nil
}
