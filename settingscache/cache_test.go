package settingscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/settingscache"
)

func TestSetBypassNeverStoresValue(t *testing.T) {
	c := settingscache.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "auth.session_ttl", []byte("86400"), dotorm.Bypass))

	got, err := c.Get(ctx, "auth.session_ttl")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetForeverNeverExpires(t *testing.T) {
	c := settingscache.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "attachments.filestore_path", []byte("/data/filestore"), dotorm.Forever))

	got, err := c.Get(ctx, "attachments.filestore_path")
	require.NoError(t, err)
	assert.Equal(t, []byte("/data/filestore"), got)
}

func TestSetPositiveTTLExpires(t *testing.T) {
	c := settingscache.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "mail.smtp_host", []byte("smtp.gmail.com"), 1*time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	got, err := c.Get(ctx, "mail.smtp_host")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeletePrefixRemovesMatchingKeysOnly(t *testing.T) {
	c := settingscache.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "mail.smtp_host", []byte("a"), dotorm.Forever))
	require.NoError(t, c.Set(ctx, "mail.smtp_port", []byte("b"), dotorm.Forever))
	require.NoError(t, c.Set(ctx, "auth.session_ttl", []byte("c"), dotorm.Forever))

	require.NoError(t, c.DeletePrefix(ctx, "mail."))

	got, _ := c.Get(ctx, "mail.smtp_host")
	assert.Nil(t, got)
	got, _ = c.Get(ctx, "auth.session_ttl")
	assert.Equal(t, []byte("c"), got)
}

func TestClearEmptiesStore(t *testing.T) {
	c := settingscache.New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), dotorm.Forever))
	require.NoError(t, c.Clear(ctx))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoded, err := settingscache.Encode(map[string]any{"value": "smtp.gmail.com"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, settingscache.Decode(encoded, &decoded))
	assert.Equal(t, "smtp.gmail.com", decoded["value"])
}
