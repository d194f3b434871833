// Package health reports whether the ledger database is reachable, over HTTP
// and the standard gRPC health protocol.
package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Service is the gRPC service name reported alongside the overall status.
const Service = "povratna.Ledger"

// PingTimeout bounds a single database check.
const PingTimeout = 2 * time.Second

// Pinger is satisfied by *sqlx.DB and *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Checker checks the database and mirrors the result into a gRPC health server.
type Checker struct {
	db     Pinger
	logger *zap.Logger
	grpc   *grpchealth.Server
}

// NewChecker creates a checker. Until the first Update the status is NOT_SERVING.
func NewChecker(db Pinger, logger *zap.Logger) *Checker {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Checker{db: db, logger: logger, grpc: hs}
}

// Check pings the database.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Update runs one check and publishes the result.
func (c *Checker) Update(ctx context.Context) error {
	err := c.Check(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		c.logger.Warn("health check failed", zap.Error(err))
	}
	c.grpc.SetServingStatus("", status)
	c.grpc.SetServingStatus(Service, status)
	return err
}

// Run updates the status every interval until ctx is done, then marks the
// service as shutting down.
func (c *Checker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = c.Update(ctx)
	for {
		select {
		case <-ctx.Done():
			c.grpc.Shutdown()
			return nil
		case <-ticker.C:
			_ = c.Update(ctx)
		}
	}
}

// Register exposes the health and reflection services on s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.grpc)
	reflection.Register(s)
}

// Shutdown reports NOT_SERVING for every service and ignores later updates.
func (c *Checker) Shutdown() {
	c.grpc.Shutdown()
}
