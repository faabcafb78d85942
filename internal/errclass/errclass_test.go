package errclass_test

import (
	"testing"

	"github.com/reacherhq/rch/internal/errclass"
	"github.com/stretchr/testify/assert"
)

func TestClassifyLine_MailboxUnknown(t *testing.T) {
	c := errclass.ClassifyLine("550 5.1.1 User unknown")
	assert.Equal(t, errclass.PermanentMailbox, c)
}

func TestClassifyLine_Blacklist(t *testing.T) {
	c := errclass.ClassifyLine("550 5.7.1 Blocked by spamhaus, see https://www.spamhaus.org")
	assert.Equal(t, errclass.PermanentBlacklist, c)
}

func TestClassifyLine_Greylist(t *testing.T) {
	c := errclass.ClassifyLine("451 4.7.1 Greylisted, please try again later")
	assert.Equal(t, errclass.TransientGreylist, c)
}

func TestClassifyLine_Uncategorized(t *testing.T) {
	c := errclass.ClassifyLine("452 4.3.0 some unexpected condition")
	assert.Equal(t, errclass.Uncategorized, c)
}

func TestIsNoise(t *testing.T) {
	assert.True(t, errclass.IsNoise(errclass.TransientGreylist))
	assert.True(t, errclass.IsNoise(errclass.PermanentBlacklist))
	assert.False(t, errclass.IsNoise(errclass.PermanentMailbox))
	assert.False(t, errclass.IsNoise(errclass.Uncategorized))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, errclass.IsRetryable(errclass.TransientGreylist))
	assert.True(t, errclass.IsRetryable(errclass.IO))
	assert.False(t, errclass.IsRetryable(errclass.PermanentMailbox))
	assert.False(t, errclass.IsRetryable(errclass.PermanentBlacklist))
}

func TestIsFullInbox(t *testing.T) {
	assert.True(t, errclass.IsFullInbox("552 mailbox full"))
	assert.True(t, errclass.IsFullInbox("552 over quota"))
	assert.False(t, errclass.IsFullInbox("250 ok"))
}

func TestIsDisabled(t *testing.T) {
	assert.True(t, errclass.IsDisabled("550 account disabled"))
	assert.False(t, errclass.IsDisabled("250 ok"))
}
