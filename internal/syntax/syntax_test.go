package syntax_test

import (
	"testing"

	"github.com/reacherhq/rch/internal/syntax"
	"github.com/stretchr/testify/assert"
)

func TestCheck_NoAt(t *testing.T) {
	r := syntax.Check("foo")
	assert.False(t, r.IsValidSyntax)
	assert.Equal(t, "", r.Username)
	assert.Equal(t, "", r.Domain)
	assert.Nil(t, r.Address)
}

func TestCheck_NoDotInDomain(t *testing.T) {
	r := syntax.Check("foo@bar")
	assert.False(t, r.IsValidSyntax)
	assert.Equal(t, "", r.Username)
	assert.Equal(t, "", r.Domain)
}

func TestCheck_Valid(t *testing.T) {
	r := syntax.Check("foo@bar.baz")
	assert.True(t, r.IsValidSyntax)
	assert.Equal(t, "foo", r.Username)
	assert.Equal(t, "bar.baz", r.Domain)
	if assert.NotNil(t, r.Address) {
		assert.Equal(t, "foo@bar.baz", *r.Address)
	}
}

func TestCheck_DomainCaseNormalized(t *testing.T) {
	r := syntax.Check("foo@Bar.BAZ")
	assert.True(t, r.IsValidSyntax)
	assert.Equal(t, "bar.baz", r.Domain)
}

func TestCheck_TrailingDot(t *testing.T) {
	r := syntax.Check("foo@bar.baz.")
	assert.False(t, r.IsValidSyntax)
}
