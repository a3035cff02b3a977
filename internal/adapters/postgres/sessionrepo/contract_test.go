package sessionrepo

import (
	"testing"

	"github.com/conference-site/schedule-api/internal/adapters/contracttest"
	"github.com/conference-site/schedule-api/internal/adapters/postgres/testutil"
	sessionrepoport "github.com/conference-site/schedule-api/internal/ports/out/sessionrepo"
)

func TestContract_PostgresSessionRepo(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunSessionRepo(t, func(t *testing.T) (sessionrepoport.Repository, contracttest.CleanupFunc) {
		t.Helper()
		return NewRepo(pool), nil
	})
}
