// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"entgo.io/ent/dialect"
	"github.com/jordanlanch/territoryengine/pkg/database"
	"github.com/stretchr/testify/require"
)

// OpenDB opens a migrated in-memory SQLite database private to t.
func OpenDB(t *testing.T) *database.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "-", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)

	client, err := database.Open(dialect.SQLite, dsn, database.DefaultPoolConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Migrate(context.Background()))
	return client
}
