package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LojaZap/internal/model"
	"LojaZap/pkg/errors"
)

func connectedCredential(storeID int64, siteSlug string) *model.WhatsAppCredential {
	cred := &model.WhatsAppCredential{
		SiteSlug:   siteSlug,
		CustomerID: "customer-" + siteSlug,
		Status:     model.CredentialStatusConnected,
	}
	if storeID > 0 {
		cred.StoreID = &storeID
	} else {
		cred.IsGlobal = true
	}
	return cred
}

func TestResolveTenantCredential(t *testing.T) {
	f := newFixture()
	f.seedStore(1, "Loja Centro")
	f.creds.byStore[1] = connectedCredential(1, "loja-centro")
	f.creds.global = connectedCredential(0, "plataforma")

	res, err := f.credentialService().Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, SourceTenant, res.Source)
	assert.Equal(t, "loja-centro", res.Credentials.SiteSlug)
}

func TestResolveFallsBackToGlobal(t *testing.T) {
	f := newFixture()
	f.seedStore(1, "Loja Centro")
	f.creds.global = connectedCredential(0, "plataforma")

	res, err := f.credentialService().Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, SourceGlobal, res.Source)
	assert.Equal(t, "plataforma", res.Credentials.SiteSlug)
}

func TestResolveIgnoresDisconnectedTenantCredential(t *testing.T) {
	f := newFixture()
	f.seedStore(1, "Loja Centro")
	cred := connectedCredential(1, "loja-centro")
	cred.Status = model.CredentialStatusDisconnected
	f.creds.byStore[1] = cred
	f.creds.global = connectedCredential(0, "plataforma")

	res, err := f.credentialService().Resolve(context.Background(), 1)
	require.NoError(t, err)

	// 断开的门店凭证不算，落到全局
	assert.Equal(t, SourceGlobal, res.Source)
}

func TestResolveFallsBackToEnv(t *testing.T) {
	f := newFixture()
	f.seedStore(1, "Loja Centro")

	res, err := f.credentialServiceWithEnv("env-site", "env-customer").Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, SourceEnv, res.Source)
	assert.Equal(t, "env-site", res.Credentials.SiteSlug)
	assert.Equal(t, "env-customer", res.Credentials.CustomerID)
}

func TestResolveUnresolved(t *testing.T) {
	f := newFixture()
	f.seedStore(1, "Loja Centro")

	_, err := f.credentialService().Resolve(context.Background(), 1)
	assert.ErrorIs(t, err, errors.CredentialUnresolved)
}

func TestResolveDisabledStoreSkips(t *testing.T) {
	f := newFixture()
	store := f.seedStore(1, "Loja Centro")
	store.MessagingEnabled = false
	f.creds.byStore[1] = connectedCredential(1, "loja-centro")

	_, err := f.credentialService().Resolve(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.IsSkip(err), "disabled store must yield a skip, not a failure")
}

func TestResolveUnknownStore(t *testing.T) {
	f := newFixture()
	_, err := f.credentialService().Resolve(context.Background(), 42)
	assert.ErrorIs(t, err, errors.StoreNotFound)
}
