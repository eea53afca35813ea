//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/mediacache"
	"github.com/meigma/mediacache/remote"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
)

// --- Registry Container Setup ---

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the container if needed.
func getRegistry(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	registryOnce.Do(func() {
		registryAddr, registryErr = startContainer(context.Background(), testcontainers.ContainerRequest{
			Image:        "registry:2",
			ExposedPorts: []string{"5000/tcp"},
			Env:          map[string]string{"REGISTRY_STORAGE_DELETE_ENABLED": "true"},
			WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
		}, "5000/tcp")
	})
	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

// --- MinIO Container Setup ---

var (
	minioOnce sync.Once
	minioAddr string
	minioErr  error
)

// getMinIO returns the shared MinIO endpoint, starting the container if needed.
func getMinIO(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	minioOnce.Do(func() {
		minioAddr, minioErr = startContainer(context.Background(), testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		}, "9000/tcp")
	})
	if minioErr != nil {
		tb.Fatalf("start minio container: %v", minioErr)
	}
	return minioAddr
}

// newBucket creates a bucket named after the test and returns a client for it.
func newBucket(tb testing.TB, endpoint, bucket string) *minio.Client {
	tb.Helper()
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(minioUser, minioPassword, ""),
	})
	require.NoError(tb, err, "create minio client")
	require.NoError(tb, client.MakeBucket(context.Background(), bucket, minio.MakeBucketOptions{}), "create bucket")
	return client
}

func skipWithoutDocker(tb testing.TB) {
	tb.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}
	if testing.Short() {
		tb.Skip("skipping integration test in short mode")
	}
}

// startContainer starts req and returns the host:port mapped to port.
// Cleanup is handled by the testcontainers reaper.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start %s: %w", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve %s host: %w", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("resolve %s port: %w", req.Image, err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// newCoordinator returns a coordinator with a private disk tier.
func newCoordinator(tb testing.TB, store remote.Store) *mediacache.Coordinator {
	tb.Helper()
	c, err := mediacache.New(store, mediacache.WithCacheDir(tb.TempDir()))
	require.NoError(tb, err, "create coordinator")
	return c
}
