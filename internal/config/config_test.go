package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseArgs_Defaults(t *testing.T) {
	o, err := ParseArgs(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", o.Port)
	assert.Equal(t, "sqlite", o.DatabaseDriver)
	assert.Equal(t, time.Hour, o.ShareTTL.Duration)
	assert.Equal(t, 10*time.Second, o.LookupTimeout.Duration)
	assert.Equal(t, 3, o.FreePlanLimit)
	assert.Equal(t, 24*time.Hour, o.TokenTTL.Duration)
}

func TestParseArgs_FileThenFlagsThenEnv(t *testing.T) {
	path := writeConfig(t, `{
		"address": "file:1",
		"database_dsn": "file-dsn",
		"free_plan_limit": 1,
		"share_ttl": "30m",
		"lookup_timeout": 2000000000
	}`)
	t.Setenv("SERVER_ADDRESS", "env:3")
	t.Setenv("PRO_PLAN_LIMIT", "7")

	o, err := ParseArgs(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-c", path, "-d", "flag-dsn"})
	require.NoError(t, err)

	assert.Equal(t, "env:3", o.Port, "env wins")
	assert.Equal(t, "flag-dsn", o.DatabaseDSN, "explicit flag beats file")
	assert.Equal(t, 1, o.FreePlanLimit)
	assert.Equal(t, 7, o.ProPlanLimit)
	assert.Equal(t, 30*time.Minute, o.ShareTTL.Duration)
	assert.Equal(t, 2*time.Second, o.LookupTimeout.Duration)

	p := o.QuotaPolicy()
	assert.Equal(t, 1, p.FreeLimit)
	assert.Equal(t, 7, p.ProLimit)
}

func TestLoadFile_Errors(t *testing.T) {
	o := Default()
	assert.Error(t, o.LoadFile(writeConfig(t, "{not json")))
	assert.Error(t, o.LoadFile(writeConfig(t, `{"share_ttl": "soon"}`)))
	assert.NoError(t, o.LoadFile(""))
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("FREE_PLAN_LIMIT", "many")
	assert.Error(t, Default().ApplyEnv())
}

func TestApplyEnv_GuestSwitch(t *testing.T) {
	t.Setenv("ALLOW_GUEST_PLANS", "true")
	o := Default()
	require.NoError(t, o.ApplyEnv())
	assert.True(t, o.AllowGuestPlans)
}

func TestParseArgs_PaymentSecret(t *testing.T) {
	t.Setenv("PAYMENT_SECRET", "")
	path := writeConfig(t, `{"payment_secret": "file", "token_ttl": "2h"}`)

	o, err := ParseArgs(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-c", path})
	require.NoError(t, err)
	assert.Equal(t, "file", o.PaymentSecret)
	assert.Equal(t, 2*time.Hour, o.TokenTTL.Duration)

	t.Setenv("PAYMENT_SECRET", "env")
	o, err = ParseArgs(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-c", path, "-payment-secret", "flag"})
	require.NoError(t, err)
	assert.Equal(t, "env", o.PaymentSecret, "env wins")
}
