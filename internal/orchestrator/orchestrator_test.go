package orchestrator_test

import (
	"context"
	"testing"

	"github.com/reacherhq/rch/internal/misc"
	"github.com/reacherhq/rch/internal/mxlookup"
	"github.com/reacherhq/rch/internal/orchestrator"
	"github.com/reacherhq/rch/internal/smtpprobe"
	"github.com/reacherhq/rch/internal/syntax"
	"github.com/stretchr/testify/assert"
)

func TestRun_NoDotInDomainIsInvalid(t *testing.T) {
	out := orchestrator.Run(context.Background(), orchestrator.Input{ToEmail: "foo@bar"})
	assert.Equal(t, orchestrator.Invalid, out.IsReachable)
	assert.Equal(t, "", out.Syntax.Username)
	assert.Equal(t, "", out.Syntax.Domain)
	assert.Nil(t, out.Syntax.Address)
	assert.Empty(t, out.MX.Records)
	assert.False(t, out.SMTP.CanConnectSMTP)
}

func TestRun_ValidSyntaxNoMX(t *testing.T) {
	out := orchestrator.Run(context.Background(), orchestrator.Input{ToEmail: "foo@bar.baz"})
	assert.True(t, out.Syntax.IsValidSyntax)
	assert.Equal(t, "foo", out.Syntax.Username)
	assert.Equal(t, "bar.baz", out.Syntax.Domain)
	assert.Equal(t, orchestrator.Invalid, out.IsReachable)
}

func TestDerive_Safe(t *testing.T) {
	out := orchestrator.Output{
		Syntax: syntax.Result{IsValidSyntax: true},
		MX:     mxlookup.Result{AcceptsMail: true, Records: []string{"mx1"}},
		Misc:   misc.Result{},
		SMTP:   smtpprobe.Result{CanConnectSMTP: true, IsDeliverable: true},
	}
	assert.Equal(t, orchestrator.Safe, orchestrator.Derive(out))
}

func TestDerive_RiskyCatchAll(t *testing.T) {
	out := orchestrator.Output{
		Syntax: syntax.Result{IsValidSyntax: true},
		MX:     mxlookup.Result{AcceptsMail: true, Records: []string{"mx1"}},
		SMTP:   smtpprobe.Result{CanConnectSMTP: true, IsDeliverable: true, IsCatchAll: true},
	}
	assert.Equal(t, orchestrator.Risky, orchestrator.Derive(out))
}

func TestDerive_RiskyRoleAccount(t *testing.T) {
	out := orchestrator.Output{
		Syntax: syntax.Result{IsValidSyntax: true},
		MX:     mxlookup.Result{AcceptsMail: true, Records: []string{"mx1"}},
		Misc:   misc.Result{IsRoleAccount: true},
		SMTP:   smtpprobe.Result{CanConnectSMTP: true, IsDeliverable: true},
	}
	assert.Equal(t, orchestrator.Risky, orchestrator.Derive(out))
}

func TestDerive_InvalidSyntax(t *testing.T) {
	out := orchestrator.Output{Syntax: syntax.Result{IsValidSyntax: false}}
	assert.Equal(t, orchestrator.Invalid, orchestrator.Derive(out))
}

func TestDerive_InvalidNoMX(t *testing.T) {
	out := orchestrator.Output{
		Syntax: syntax.Result{IsValidSyntax: true},
		MX:     mxlookup.Result{AcceptsMail: false},
	}
	assert.Equal(t, orchestrator.Invalid, orchestrator.Derive(out))
}

func TestDerive_UnknownNoConnection(t *testing.T) {
	out := orchestrator.Output{
		Syntax: syntax.Result{IsValidSyntax: true},
		MX:     mxlookup.Result{AcceptsMail: true, Records: []string{"mx1"}},
		SMTP:   smtpprobe.Result{CanConnectSMTP: false},
	}
	assert.Equal(t, orchestrator.Unknown, orchestrator.Derive(out))
}

func TestDerive_Pure(t *testing.T) {
	out := orchestrator.Output{
		Syntax: syntax.Result{IsValidSyntax: true},
		MX:     mxlookup.Result{AcceptsMail: true, Records: []string{"mx1"}},
		SMTP:   smtpprobe.Result{CanConnectSMTP: true, IsDeliverable: true},
	}
	a := orchestrator.Derive(out)
	b := orchestrator.Derive(out)
	assert.Equal(t, a, b)
}
