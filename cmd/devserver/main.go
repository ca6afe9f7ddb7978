package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"calcclient/internal/grpc"
	"calcclient/internal/orchestrator"
)

// Локальный сервис вычислений для разработки и ручной проверки calcctl.
func main() {
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err == nil {
			log.Printf("Загружен файл с переменными окружения: %s", file)
			break
		}
	}

	httpPort := getEnvOrDefault("ORCHESTRATOR_HTTP_PORT", "8080")
	grpcPort := getEnvOrDefault("ORCHESTRATOR_GRPC_PORT", "8081")

	times := orchestrator.OperationTimes{
		Addition:       getDurationMs("TIME_ADDITION_MS", "510"),
		Subtraction:    getDurationMs("TIME_SUBTRACTION_MS", "520"),
		Multiplication: getDurationMs("TIME_MULTIPLICATIONS_MS", "530"),
		Division:       getDurationMs("TIME_DIVISIONS_MS", "540"),
	}
	computingPower, err := strconv.Atoi(getEnvOrDefault("COMPUTING_POWER", "4"))
	if err != nil || computingPower <= 0 {
		log.Fatal("Invalid COMPUTING_POWER")
	}
	tokenTTL, err := strconv.Atoi(getEnvOrDefault("TOKEN_TTL_MINUTES", "60"))
	if err != nil || tokenTTL <= 0 {
		log.Fatal("Invalid TOKEN_TTL_MINUTES")
	}

	quirks := orchestrator.Quirks{
		ConcatenatedJSON: os.Getenv("QUIRK_CONCATENATED_JSON") == "1",
		BOM:              os.Getenv("QUIRK_BOM") == "1",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskManager := orchestrator.NewTaskManager(times)
	taskManager.Start(ctx, computingPower)
	log.Printf("TaskManager запущен: вычислителей=%d", computingPower)

	grpcServer, _, err := grpc.StartServer(ctx, ":"+grpcPort)
	if err != nil {
		log.Fatalf("Failed to start gRPC server: %v", err)
	}

	s := orchestrator.NewServer(
		taskManager,
		orchestrator.NewUsers(),
		orchestrator.NewTokens(os.Getenv("JWT_SECRET"), time.Duration(tokenTTL)*time.Minute),
		quirks,
	)
	server := &http.Server{
		Addr:    ":" + httpPort,
		Handler: s.Router("/api"),
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", httpPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка при остановке HTTP сервера: %v", err)
	}
	grpcServer.GracefulStop()
	log.Println("Сервер остановлен")
}

func getEnvOrDefault(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		log.Printf("Переменная %s отсутствует в окружении, используем значение по умолчанию: %s", envVar, defaultValue)
		return defaultValue
	}
	return value
}

func getDurationMs(envVar, defaultValue string) time.Duration {
	ms, err := strconv.Atoi(getEnvOrDefault(envVar, defaultValue))
	if err != nil || ms < 0 {
		log.Fatalf("Invalid %s", envVar)
	}
	return time.Duration(ms) * time.Millisecond
}
