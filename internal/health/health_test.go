package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/erazemk/povratna/internal/db"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) PingContext(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func startServer(t *testing.T, c *Checker) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	c.Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func status(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.Status
}

func TestCheckerReportsDatabaseState(t *testing.T) {
	ctx := context.Background()
	pinger := &fakePinger{}
	c := NewChecker(pinger, zaptest.NewLogger(t))
	client := startServer(t, c)

	if got := status(t, client, Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("before first check: expected NOT_SERVING, got %v", got)
	}

	if err := c.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := status(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", got)
	}

	pinger.fail(errors.New("disk gone"))
	if err := c.Update(ctx); err == nil {
		t.Error("expected Update to report the failure")
	}
	if got := status(t, client, Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after failure: expected NOT_SERVING, got %v", got)
	}

	pinger.fail(nil)
	c.Update(ctx)
	c.Shutdown()
	if got := status(t, client, Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after shutdown: expected NOT_SERVING, got %v", got)
	}
}

func TestCheckAgainstDatabase(t *testing.T) {
	database := db.NewTestDB(t)
	c := NewChecker(database, zaptest.NewLogger(t))

	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check: %v", err)
	}

	database.Close()
	if err := c.Check(context.Background()); err == nil {
		t.Error("expected error after closing the database")
	}
}
