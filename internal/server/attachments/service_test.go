package attachments

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sc "github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/config"
)

func testService() *Service {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	return NewService(cfg)
}

func TestStorageKey_TenantPrefixAndUniqueness(t *testing.T) {
	a := storageKey("t1")
	b := storageKey("t1")

	assert.True(t, strings.HasPrefix(a, "tenants/t1/"))
	assert.NotEqual(t, a, b)
}

func TestKeyBelongsToTenant(t *testing.T) {
	assert.True(t, keyBelongsToTenant("tenants/t1/2026/8/31/abc", "t1"))
	assert.False(t, keyBelongsToTenant("tenants/t2/2026/8/31/abc", "t1"))
	assert.False(t, keyBelongsToTenant("tenants/t1/", "t1"))
	assert.False(t, keyBelongsToTenant("other/t1/abc", "t1"))
}

func TestGetPresignedGetUrl_RefusesForeignKey(t *testing.T) {
	s := testService()

	_, err := s.GetPresignedGetUrl(context.Background(), "t1", "tenants/t2/2026/8/31/abc")
	require.Error(t, err)
}

func TestGetPresignedPutUrl(t *testing.T) {
	s := testService()

	key, url, err := s.GetPresignedPutUrl(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "tenants/t1/"))
	assert.Contains(t, url, s.config.S3Bucket)
	assert.Contains(t, url, key)
}
