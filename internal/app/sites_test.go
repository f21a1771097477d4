package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

type loaderSites struct {
	interfaces.SiteStorage
	byURL map[string]*models.Site
	saved []*models.Site
}

func (s *loaderSites) GetSiteByURL(ctx context.Context, url string) (*models.Site, error) {
	if site, ok := s.byURL[url]; ok {
		return site, nil
	}
	return nil, models.ErrSiteNotFound
}

func (s *loaderSites) SaveSite(ctx context.Context, site *models.Site) error {
	s.saved = append(s.saved, site)
	return nil
}

type loaderStorage struct {
	sites *loaderSites
}

func (s *loaderStorage) Sites() interfaces.SiteStorage                { return s.sites }
func (s *loaderStorage) Opportunities() interfaces.OpportunityStorage { return nil }
func (s *loaderStorage) Close() error                                 { return nil }

type loaderVault struct {
	interfaces.Vault
	sealed int
}

func (v *loaderVault) SealCredentials(creds *models.Credentials) ([]byte, error) {
	v.sealed++
	return []byte("sealed-blob"), nil
}

func newLoaderApp(t *testing.T, dir string) (*App, *loaderSites, *loaderVault) {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Sites.Dir = dir
	sites := &loaderSites{byURL: make(map[string]*models.Site)}
	vault := &loaderVault{}
	return &App{
		Config:  config,
		Logger:  common.GetLogger(),
		Storage: &loaderStorage{sites: sites},
		Vault:   vault,
	}, sites, vault
}

func writeSiteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadSites_AllFormats(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "portal.json", `{
		"name": "JSON Portal",
		"url": "https://json.example.com",
		"auth_type": "none"
	}`)
	writeSiteFile(t, dir, "tenders.yaml", `
name: YAML Portal
url: https://yaml.example.com
auth_type: form
credentials:
  username: scraper
  password: hunter2
`)
	writeSiteFile(t, dir, "grants.toml", `
name = "TOML Portal"
url = "https://toml.example.com"
auth_type = "none"
`)
	writeSiteFile(t, dir, "notes.txt", "not a site definition")

	app, sites, vault := newLoaderApp(t, dir)
	require.NoError(t, app.loadSites(context.Background()))

	require.Len(t, sites.saved, 3)
	byName := make(map[string]*models.Site)
	for _, s := range sites.saved {
		byName[s.Name] = s
		assert.NotEmpty(t, s.ID)
		assert.True(t, s.Active, "active defaults to true")
	}
	assert.Contains(t, byName, "JSON Portal")
	assert.Contains(t, byName, "TOML Portal")

	// The YAML portal carried plaintext credentials; they were sealed
	assert.Equal(t, 1, vault.sealed)
	assert.Equal(t, []byte("sealed-blob"), byName["YAML Portal"].EncryptedCredentials)
}

func TestLoadSites_UpsertsByURL(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "portal.json", `{
		"name": "Renamed Portal",
		"url": "https://existing.example.com",
		"auth_type": "none"
	}`)

	app, sites, _ := newLoaderApp(t, dir)
	sites.byURL["https://existing.example.com"] = &models.Site{
		ID:                   "site_existing",
		URL:                  "https://existing.example.com",
		EncryptedCredentials: []byte("kept"),
	}
	require.NoError(t, app.loadSites(context.Background()))

	require.Len(t, sites.saved, 1)
	assert.Equal(t, "site_existing", sites.saved[0].ID, "existing id reused")
	assert.Equal(t, []byte("kept"), sites.saved[0].EncryptedCredentials,
		"credentials survive when the definition has none")
}

func TestLoadSites_SkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "broken.json", `{not json`)
	writeSiteFile(t, dir, "nourl.json", `{"name": "No URL", "auth_type": "none"}`)
	writeSiteFile(t, dir, "good.json", `{"name": "Good", "url": "https://good.example.com"}`)

	app, sites, _ := newLoaderApp(t, dir)
	require.NoError(t, app.loadSites(context.Background()))

	require.Len(t, sites.saved, 1)
	assert.Equal(t, "Good", sites.saved[0].Name)
}

func TestLoadSites_MissingDirIsNotAnError(t *testing.T) {
	app, sites, _ := newLoaderApp(t, filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, app.loadSites(context.Background()))
	assert.Empty(t, sites.saved)
}
