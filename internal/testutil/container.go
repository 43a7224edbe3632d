package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImageEnv overrides the image used by NewPostgresContainer.
const PostgresImageEnv = "ITSM_TEST_POSTGRES_IMAGE"

const defaultPostgresImage = "postgres:16-alpine"

// PostgresContainer wraps a postgres testcontainer.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// NewPostgresContainer starts a throwaway PostgreSQL for integration tests
// and returns it with a ready to use connection string.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	image := os.Getenv(PostgresImageEnv)
	if image == "" {
		image = defaultPostgresImage
	}

	container, err := postgres.Run(ctx,
		image,
		postgres.WithDatabase("itsm_test"),
		postgres.WithUsername("itsm"),
		postgres.WithPassword("itsm"),
		testcontainers.WithWaitStrategy(
			// The server restarts once after init, so the line appears twice
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container %s: %w", image, err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
	}, nil
}
