package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/hive-corporation/iocscope/internal/adapter/handler"
	"github.com/hive-corporation/iocscope/internal/adapter/metrics"
	"github.com/hive-corporation/iocscope/internal/app"
	"github.com/hive-corporation/iocscope/internal/config"
	"github.com/hive-corporation/iocscope/internal/platform/logging"
)

func main() {
	logger := logging.Init("iocscope-grpc")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	a, err := app.Build(context.Background(), cfg, metrics.Default(), logger)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	// GRPC_LISTEN_ADDR defaults to localhost:50051
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	s := grpc.NewServer()

	handler.RegisterLookupServer(s, handler.NewGrpcServer(a.Service, logger))

	reflection.Register(s)

	go func() {
		log.Printf("🚀 iocscope gRPC API listening on %s\n", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	s.GracefulStop()
}
