//go:build integration

package objectstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	conf "github.com/trunov/webpbucket/internal/config"
)

// localstackEndpoint starts a Localstack container, or reuses LOCALSTACK_ENDPOINT when set.
func localstackEndpoint(t *testing.T) string {
	t.Helper()
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "localstack/localstack:3.0",
			ExposedPorts: []string{"4566/tcp"},
			Env: map[string]string{
				"SERVICES":       "s3",
				"DEFAULT_REGION": "us-east-1",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4566/tcp"),
				wait.ForHTTP("/_localstack/health").
					WithPort("4566/tcp").
					WithStartupTimeout(60*time.Second),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "start localstack")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4566")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func TestS3_Localstack(t *testing.T) {
	ctx := context.Background()
	bucket := fmt.Sprintf("webp-test-%d", time.Now().UnixNano())

	s, err := NewStorage(ctx, &conf.StorageConfig{
		BucketName:     bucket,
		Region:         "us-east-1",
		Endpoint:       localstackEndpoint(t),
		AccessKeyID:    "test",
		SecretKey:      "test",
		UsePathStyle:   true,
		MaxConnections: 8,
		PageSize:       2,
	})
	require.NoError(t, err)

	client := s.api.(*s3.Client)
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)

	keys := []string{"docs/report.pdf", "img/notes.txt", "img/x.png"}
	for _, k := range keys {
		require.NoError(t, s.Upload(ctx, k, "application/octet-stream", []byte(k)))
	}

	var listed []string
	for key, err := range s.List(ctx) {
		require.NoError(t, err)
		listed = append(listed, key)
	}
	assert.Equal(t, keys, listed)

	data, err := s.Download(ctx, "img/x.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("img/x.png"), data)

	_, err = s.Download(ctx, "img/missing.png")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
