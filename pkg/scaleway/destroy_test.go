package scaleway

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestroy(t *testing.T) {
	f, srv := newFakeScaleway(t)
	f.on("GET /instance/v1/zones/nl-ams-1/servers", http.StatusOK, `{"servers":[{"id":"srv-1","name":"app-server"}],"total_count":1}`)
	f.on("GET /instance/v1/zones/nl-ams-1/ips", http.StatusOK, `{"ips":[
		{"id":"ip-1","address":"51.15.9.9","server":null},
		{"id":"ip-2","address":"51.15.9.10","server":{"id":"other"}}],"total_count":2}`)
	f.on("GET /instance/v1/zones/nl-ams-1/volumes", http.StatusOK, `{"volumes":[{"id":"vol-1","name":"data"}],"total_count":1}`)

	cacheDir := filepath.Join(t.TempDir(), "scaleway-deploy")
	require.NoError(t, WriteServerIP(cacheDir, "51.15.9.9"))
	store := newMemStore(SetupSecrets...)

	res, err := NewDestroyer(testAPI(t, srv), store).Destroy(context.Background(), DestroyOptions{
		Repo:            "ada/shop",
		ProjectID:       "proj-1",
		CacheDir:        cacheDir,
		KeepCredentials: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"app-server"}, res.Servers)
	assert.Equal(t, []string{"51.15.9.9"}, res.IPs)
	assert.Equal(t, []string{"data"}, res.Volumes)
	assert.Equal(t, []string{SecretServerIP}, res.Secrets)
	assert.Contains(t, store.values, SecretAccessKey)

	assert.Equal(t, []string{
		"GET /instance/v1/zones/nl-ams-1/servers",
		"POST /instance/v1/zones/nl-ams-1/servers/srv-1/action",
		"DELETE /instance/v1/zones/nl-ams-1/servers/srv-1",
		"GET /instance/v1/zones/nl-ams-1/ips",
		"DELETE /instance/v1/zones/nl-ams-1/ips/ip-1",
		"GET /instance/v1/zones/nl-ams-1/volumes",
		"DELETE /instance/v1/zones/nl-ams-1/volumes/vol-1",
	}, f.routesCalled())
	assert.Equal(t, "poweroff", f.jsonBody("POST /instance/v1/zones/nl-ams-1/servers/srv-1/action")["action"])

	_, err = os.Stat(cacheDir)
	assert.True(t, os.IsNotExist(err))
}

func TestDestroy_RemovesCredentials(t *testing.T) {
	_, srv := newFakeScaleway(t)
	store := newMemStore(SecretAccessKey, SecretSecretKey, "DB_PASSWORD")

	res, err := NewDestroyer(testAPI(t, srv), store).Destroy(context.Background(), DestroyOptions{Repo: "ada/shop", ProjectID: "p"})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.ElementsMatch(t, []string{SecretAccessKey, SecretSecretKey}, store.deleted)
	assert.Contains(t, store.values, "DB_PASSWORD")
}

func TestDestroy_CollectsFailures(t *testing.T) {
	f, srv := newFakeScaleway(t)
	f.on("GET /instance/v1/zones/nl-ams-1/servers", http.StatusOK, `{"servers":[{"id":"a","name":"one"},{"id":"b","name":"two"}],"total_count":2}`)
	f.on("DELETE /instance/v1/zones/nl-ams-1/servers/a", http.StatusConflict, `{"message":"server is running"}`)

	res, err := NewDestroyer(testAPI(t, srv), nil).Destroy(context.Background(), DestroyOptions{ProjectID: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete server one")
	assert.Equal(t, []string{"two"}, res.Servers)
}

func TestDestroy_ListFailure(t *testing.T) {
	f, srv := newFakeScaleway(t)
	f.on("GET /instance/v1/zones/nl-ams-1/servers", http.StatusUnauthorized, `{"message":"denied"}`)

	_, err := NewDestroyer(testAPI(t, srv), nil).Destroy(context.Background(), DestroyOptions{ProjectID: "p"})
	assert.ErrorContains(t, err, "failed to list servers")
}
