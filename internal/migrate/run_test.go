package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OrdersAndChecksums(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_jobs.sql":  {Data: []byte("CREATE TABLE jobs ();")},
		"migrations/0001_users.sql": {Data: []byte("CREATE TABLE users ();")},
		"migrations/README.md":      {Data: []byte("ignored")},
	}

	got, err := load(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0001_users", got[0].version)
	assert.Equal(t, "0002_jobs", got[1].version)
	assert.Equal(t, "CREATE TABLE users ();", got[0].body)
	assert.Len(t, got[0].checksum, 64)
	assert.NotEqual(t, got[0].checksum, got[1].checksum)
}

func TestLoad_EmbeddedSchema(t *testing.T) {
	got, err := load(migrationsFS)
	require.NoError(t, err)
	versions := make([]string, len(got))
	for i, m := range got {
		versions[i] = m.version
	}
	assert.Equal(t, []string{
		"0001_users", "0002_jobs", "0003_applications", "0004_notifications", "0005_messages",
		"0006_notification_delivery_retry",
	}, versions)
}
