package redis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-core/internal/domain/otp"
)

func TestEntryHash(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &otp.Entry{Code: "012345", CreatedAt: created, ExpiresAt: created.Add(otp.CodeTTL), Attempts: 2}

	// Redis returns every hash value as a string.
	fields := map[string]string{}
	for k, v := range entryFields(in) {
		fields[k] = fmt.Sprint(v)
	}

	out, err := entryFromHash(fields)

	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEntryFromHash_NoAttemptsField(t *testing.T) {
	out, err := entryFromHash(map[string]string{
		"code":       "111111",
		"created_at": "1740830400000",
		"expires_at": "1740830700000",
	})

	require.NoError(t, err)
	assert.Equal(t, "111111", out.Code)
	assert.Equal(t, 0, out.Attempts)
	assert.Equal(t, otp.CodeTTL, out.ExpiresAt.Sub(out.CreatedAt))
}

func TestEntryFromHash_Malformed(t *testing.T) {
	for name, fields := range map[string]map[string]string{
		"NoCode":      {"created_at": "1", "expires_at": "2"},
		"BadCreated":  {"code": "1", "created_at": "x", "expires_at": "2"},
		"BadExpires":  {"code": "1", "created_at": "1"},
		"BadAttempts": {"code": "1", "created_at": "1", "expires_at": "2", "attempts": "many"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := entryFromHash(fields)
			require.Error(t, err)
		})
	}
}
