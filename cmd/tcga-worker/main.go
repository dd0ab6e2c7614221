// Package main runs the TCGA import Temporal worker.
package main

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nucleus/tcga-import/internal/activities"
	"github.com/nucleus/tcga-import/internal/config"
	"github.com/nucleus/tcga-import/internal/importer"
)

func main() {
	cfg := config.Load()
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"address":   cfg.TemporalAddress,
		"namespace": cfg.TemporalNamespace,
		"queue":     cfg.TaskQueue,
	}).Info("starting tcga worker")

	im, closeSink, err := importer.Setup(context.Background(), cfg, importer.OptionsFrom(cfg), logger)
	if err != nil {
		logger.Fatalf("importer setup: %v", err)
	}
	defer closeSink()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    temporalLogger{logger.WithField("component", "temporal")},
	})
	if err != nil {
		logger.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	healthSrv, stopHealth := serveHealth(cfg.HealthAddr, logger)
	defer stopHealth()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	acts := activities.NewActivities(im)
	w.RegisterActivity(acts.BuildArchive)
	logger.Info("registered activities: BuildArchive")

	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if err := w.Run(worker.InterruptCh()); err != nil {
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		logger.Fatalf("Worker failed: %v", err)
	}
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
}

// serveHealth starts the gRPC health service on addr. The service reports
// NOT_SERVING until the caller flips it.
func serveHealth(addr string, logger logrus.FieldLogger) (*health.Server, func()) {
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if addr == "" {
		return healthSrv, func() {}
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	go func() {
		logger.WithField("addr", addr).Info("health gRPC listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.WithError(err).Error("health server stopped")
		}
	}()
	return healthSrv, grpcServer.GracefulStop
}
