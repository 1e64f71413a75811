package tests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgresForTests starts a PostgreSQL testcontainer.
// It returns a DSN without the `postgres://` prefix, matching what the app expects
// (the app prepends the protocol internally), and a termination func for cleanup.
func StartPostgresForTests() (dsnNoProto string, terminate func(), err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgC, e := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("shopsphere_orders"),
		tcpostgres.WithUsername("shopsphere"),
		tcpostgres.WithPassword("shopsphere"),
		tcpostgres.BasicWaitStrategies(),
	)
	if e != nil {
		err = fmt.Errorf("failed to start postgres test container: %w", e)
		return
	}

	connStr, e := pgC.ConnectionString(ctx, "sslmode=disable")
	if e != nil {
		_ = pgC.Terminate(context.Background())
		err = fmt.Errorf("failed to get postgres connection string: %w", e)
		return
	}

	terminate = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = pgC.Terminate(ctx)
	}
	dsnNoProto = strings.TrimPrefix(connStr, "postgres://")
	return
}

// StartKafkaForTests starts a single-node KRaft broker and returns its bootstrap address.
func StartKafkaForTests() (bootstrap string, terminate func(), err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	kc, e := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("shopsphere-test"))
	if e != nil {
		err = fmt.Errorf("failed to start kafka test container: %w", e)
		return
	}
	brokers, e := kc.Brokers(ctx)
	if e != nil || len(brokers) == 0 {
		_ = kc.Terminate(context.Background())
		err = fmt.Errorf("failed to get kafka brokers: %v", e)
		return
	}
	bootstrap = strings.Join(brokers, ",")

	terminate = func() {
		ctx, c := context.WithTimeout(context.Background(), 30*time.Second)
		defer c()
		_ = kc.Terminate(ctx)
	}
	return
}

// StartRedisForTests spins up a Redis container and returns host:port and a terminate function.
func StartRedisForTests() (addr string, terminate func(), err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	rc, e := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if e != nil {
		err = fmt.Errorf("failed to start redis test container: %w", e)
		return
	}

	host, e := rc.Host(ctx)
	if e != nil {
		_ = rc.Terminate(context.Background())
		err = fmt.Errorf("failed to get redis host: %w", e)
		return
	}
	mapped, e := rc.MappedPort(ctx, "6379/tcp")
	if e != nil {
		_ = rc.Terminate(context.Background())
		err = fmt.Errorf("failed to get redis mapped port: %w", e)
		return
	}
	addr = fmt.Sprintf("%s:%s", host, mapped.Port())

	terminate = func() {
		ctx, c := context.WithTimeout(context.Background(), 30*time.Second)
		defer c()
		_ = rc.Terminate(ctx)
	}
	return
}
