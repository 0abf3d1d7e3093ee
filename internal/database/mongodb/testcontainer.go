package mongodb

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// TestImage is the MongoDB image used by integration tests.
const TestImage = "mongo:7.0"

// TestContainer holds a MongoDB test container instance.
type TestContainer struct {
	Container *mongodb.MongoDBContainer
	URI       string
}

// SetupTestContainer starts a MongoDB container that is terminated when the
// test finishes.
func SetupTestContainer(t *testing.T) *TestContainer {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, TestImage)
	if err != nil {
		t.Fatalf("failed to start MongoDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("warning: failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return &TestContainer{Container: container, URI: uri}
}

// NewTestClient connects a client to the container.
func (tc *TestContainer) NewTestClient(t *testing.T, database string) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.URI = tc.URI
	cfg.Database = database

	client, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("failed to create MongoDB client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

// SetupTestContainerWithClient starts a container and connects a client to it.
func SetupTestContainerWithClient(t *testing.T, database string) (*TestContainer, *Client) {
	t.Helper()
	tc := SetupTestContainer(t)
	return tc, tc.NewTestClient(t, database)
}
