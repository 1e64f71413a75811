package tests

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg/cache"
	appsvc "github.com/nimeshabuddhika/shopsphere-orders/services/order-api/app"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// OrderAPI is a running in-process order-api plus the handles tests need to inspect it.
type OrderAPI struct {
	BaseURL    string
	DSNNoProto string
	RedisAddr  string
}

type serverOptions struct {
	withRedis bool
	env       map[string]string
}

type ServerOption func(*serverOptions)

// WithRedis starts a Redis container and enables the checkout lock.
func WithRedis() ServerOption {
	return func(o *serverOptions) { o.withRedis = true }
}

// WithEnv sets an extra APP_ variable, e.g. WithEnv("NOTIFY_MAX_ATTEMPTS", "1").
func WithEnv(key, value string) ServerOption {
	return func(o *serverOptions) { o.env[key] = value }
}

// StartOrderAPIServer starts the order-api HTTP server in-process using NewApp, pointed at the
// given fake collaborators. Containers and server are torn down when the test ends.
func StartOrderAPIServer(t *testing.T, fakes *FakeCollaborators, opts ...ServerOption) OrderAPI {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	options := serverOptions{env: map[string]string{}}
	for _, opt := range opts {
		opt(&options)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	// Start disposable containers concurrently
	var (
		api          OrderAPI
		pgTerminate  func()
		rdsTerminate func()
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		dsn, term, err := StartPostgresForTests()
		api.DSNNoProto, pgTerminate = dsn, term
		return err
	})
	if options.withRedis {
		g.Go(func() error {
			addr, term, err := StartRedisForTests()
			api.RedisAddr, rdsTerminate = addr, term
			return err
		})
	}
	terminate := func() {
		if pgTerminate != nil {
			pgTerminate()
		}
		if rdsTerminate != nil {
			rdsTerminate()
		}
	}
	if err := g.Wait(); err != nil {
		terminate()
		t.Fatalf("failed to start dependencies: %v", err)
	}

	t.Setenv("GIN_MODE", "test")
	t.Setenv("APP_PORT", fmt.Sprintf("%d", port))
	t.Setenv("APP_PRIMARY_DB_ADDR", api.DSNNoProto)
	t.Setenv("APP_REPLICA_DB_ADDR", api.DSNNoProto)
	t.Setenv("APP_CART_SERVICE_URL", fakes.URL())
	t.Setenv("APP_CATALOG_SERVICE_URL", fakes.URL())
	t.Setenv("APP_PAYMENT_SERVICE_URL", fakes.URL())
	t.Setenv("APP_NOTIFICATION_SERVICE_URL", fakes.URL())
	t.Setenv("APP_NOTIFY_BASE_BACKOFF", "10ms")
	t.Setenv("APP_NOTIFY_MAX_BACKOFF", "50ms")
	t.Setenv("APP_REDIS_ADDR", api.RedisAddr)
	t.Setenv("APP_KAFKA_BROKERS", "")
	for k, v := range options.env {
		t.Setenv("APP_"+k, v)
	}

	pkg.InitLogger("order-api")
	srv, appCleanup, err := appsvc.NewApp(context.Background(), pkg.Logger)
	if err != nil {
		terminate()
		t.Fatalf("failed to build order-api app: %v", err)
	}

	api.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	go func() {
		_ = srv.ListenAndServe()
	}()

	// Wait for readiness with timeout, allow time for migrations
	wctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := waitForReady(wctx, api.BaseURL+"/health"); err != nil {
		_ = srv.Close()
		appCleanup()
		terminate()
		t.Fatalf("order-api failed to become ready: %v", err)
	}

	t.Cleanup(func() {
		ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
		defer c()
		_ = srv.Shutdown(ctx)
		appCleanup()
		terminate()
	})
	return api
}

// CountRows runs a COUNT(*) query against the app database.
func CountRows(t *testing.T, dsnNoProto, query string, args ...any) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, "postgres://"+dsnNoProto)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var n int
	if err := conn.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

// ExecSQL runs a statement against the app database, e.g. to break the schema on purpose.
func ExecSQL(t *testing.T, dsnNoProto, sql string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, "postgres://"+dsnNoProto)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, sql); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
}

// NewRedisClient connects to a Redis started by WithRedis; it is closed when the test ends.
func NewRedisClient(t *testing.T, addr string) *redis.Client {
	t.Helper()
	client, closeClient, err := cache.New(context.Background(), cache.Config{Addr: addr})
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(closeClient)
	return client
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func waitForReady(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout waiting for %s", url)
		}
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(150 * time.Millisecond)
	}
}
