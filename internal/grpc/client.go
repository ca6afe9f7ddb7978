package grpc

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Health результат проверки доступности оркестратора
type Health struct {
	Address string
	Status  string // SERVING, NOT_SERVING, UNKNOWN или UNIMPLEMENTED
	Latency time.Duration
}

// Serving: сервер без health-сервиса тоже считается доступным
func (h Health) Serving() bool {
	return h.Status == healthpb.HealthCheckResponse_SERVING.String() || h.Status == codes.Unimplemented.String()
}

// Check запрашивает статус сервиса по health-протоколу
func Check(ctx context.Context, address, service string) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return Health{Address: address}, fmt.Errorf("не удалось подключиться к %s: %w", address, err)
	}
	defer conn.Close()

	start := time.Now()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	h := Health{Address: address, Latency: time.Since(start)}
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.Unimplemented {
			h.Status = codes.Unimplemented.String()
			return h, nil
		}
		log.Printf("Ошибка проверки состояния %s: %v", address, err)
		return h, err
	}

	h.Status = resp.GetStatus().String()
	return h, nil
}
