package userrepo

import (
	"testing"

	"github.com/conference-site/schedule-api/internal/adapters/contracttest"
	userrepoport "github.com/conference-site/schedule-api/internal/ports/out/userrepo"
)

func TestContract_UserRepo(t *testing.T) {
	contracttest.RunUserRepo(t, func(t *testing.T) (userrepoport.Repository, contracttest.CleanupFunc) {
		t.Helper()
		return NewRepo(), nil
	})
}
