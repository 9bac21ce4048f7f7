package suite

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	expireDuration  = 120
	maxWaitDuration = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"

	natsPort  = "4222/tcp"
	natsImage = "nats"
	natsTag   = "2.10-alpine"
)

type Suite struct {
	*testing.T
	Logger *slog.Logger

	Storage *redis.Client
	Nats    *nats.Conn
}

// New - starts a Redis container and returns a suite connected to it.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, st, pool := newSuite(t)

	redisHost := runContainer(t, pool, redisImage, redisTag, redisPort)

	var redisClient *redis.Client
	if err := pool.Retry(func() error {
		redisClient = redis.NewClient(&redis.Options{
			Addr: redisHost,
		})
		return redisClient.Ping(ctx).Err()
	}); err != nil {
		t.Fatalf("could not connect to redis: %v", err)
	}

	if err := redisClient.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	t.Cleanup(func() {
		_ = redisClient.Close()
	})

	st.Storage = redisClient

	return ctx, st
}

// NewNats - starts a NATS container and returns a suite connected to it.
func NewNats(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, st, pool := newSuite(t)

	natsHost := runContainer(t, pool, natsImage, natsTag, natsPort)

	var conn *nats.Conn
	if err := pool.Retry(func() error {
		var err error
		conn, err = nats.Connect("nats://" + natsHost)
		return err
	}); err != nil {
		t.Fatalf("could not connect to nats: %v", err)
	}

	t.Cleanup(conn.Close)

	st.Nats = conn

	return ctx, st
}

func newSuite(t *testing.T) (context.Context, *Suite, *dockertest.Pool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(func() {
		cancel()
	})

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	// exponential backoff-retry, because the application in the container might not be ready to accept connections yet
	pool.MaxWait = maxWaitDuration

	return ctx, &Suite{T: t, Logger: logger}, pool
}

// runContainer - runs image:tag and returns the host address of port.
func runContainer(t *testing.T, pool *dockertest.Pool, image, tag, port string) string {
	t.Helper()

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        tag,
		Env:        []string{},
	}, func(config *docker.HostConfig) {
		// set AutoRemove to true so that stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}

	// never returns error
	_ = resource.Expire(expireDuration) // Tell docker to hard kill the container in 120 seconds

	t.Cleanup(func() {
		if err = pool.Purge(resource); err != nil {
			t.Errorf("could not purge resource: %v", err)
		}
	})

	return resource.GetHostPort(port)
}
