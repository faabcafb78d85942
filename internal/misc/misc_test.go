package misc_test

import (
	"testing"

	"github.com/reacherhq/rch/internal/misc"
	"github.com/stretchr/testify/assert"
)

func TestCheck_Disposable(t *testing.T) {
	r := misc.Check("anyone", "mailinator.com")
	assert.True(t, r.IsDisposable)
}

func TestCheck_NotDisposable(t *testing.T) {
	r := misc.Check("anyone", "gmail.com")
	assert.False(t, r.IsDisposable)
}

func TestCheck_RoleAccount(t *testing.T) {
	r := misc.Check("admin", "example.com")
	assert.True(t, r.IsRoleAccount)
}

func TestCheck_NotRoleAccount(t *testing.T) {
	r := misc.Check("jane.doe", "example.com")
	assert.False(t, r.IsRoleAccount)
}

func TestCheck_CaseInsensitive(t *testing.T) {
	r := misc.Check("Admin", "MAILINATOR.COM")
	assert.True(t, r.IsDisposable)
	assert.True(t, r.IsRoleAccount)
}
