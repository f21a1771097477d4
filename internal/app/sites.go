package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/models"
)

// siteDefinition is the on-disk shape of a site file. Credentials appear
// in plaintext on disk and are sealed into the database on load; they are
// never stored unencrypted.
type siteDefinition struct {
	Name           string                `json:"name" yaml:"name" toml:"name"`
	URL            string                `json:"url" yaml:"url" toml:"url"`
	Category       string                `json:"category" yaml:"category" toml:"category"`
	AuthType       models.AuthType       `json:"auth_type" yaml:"auth_type" toml:"auth_type"`
	Active         *bool                 `json:"active" yaml:"active" toml:"active"`
	ScrapingConfig models.ScrapingConfig `json:"scraping_config" yaml:"scraping_config" toml:"scraping_config"`
	Credentials    *models.Credentials   `json:"credentials" yaml:"credentials" toml:"credentials"`
}

// loadSites upserts site definitions from the configured directory. A
// missing directory is not an error; a malformed file skips that file
// only so one bad definition cannot take the service down.
func (a *App) loadSites(ctx context.Context) error {
	dir := a.Config.Sites.Dir
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			a.Logger.Debug().Str("dir", dir).Msg("Sites directory not found, skipping")
			return nil
		}
		return fmt.Errorf("failed to read sites directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch ext {
		case ".json", ".yaml", ".yml", ".toml":
		default:
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := a.loadSiteFile(ctx, path, ext); err != nil {
			a.Logger.Warn().Str("file", path).Err(err).Msg("Skipping site definition")
			continue
		}
		loaded++
	}
	a.Logger.Info().Str("dir", dir).Int("sites", loaded).Msg("Site definitions loaded")
	return nil
}

func (a *App) loadSiteFile(ctx context.Context, path, ext string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var def siteDefinition
	switch ext {
	case ".json":
		err = json.Unmarshal(data, &def)
	case ".toml":
		err = toml.Unmarshal(data, &def)
	default:
		err = yaml.Unmarshal(data, &def)
	}
	if err != nil {
		return fmt.Errorf("failed to parse site definition: %w", err)
	}
	if def.URL == "" {
		return fmt.Errorf("site definition has no url")
	}
	if def.AuthType == "" {
		def.AuthType = models.AuthTypeNone
	}
	if !def.AuthType.Valid() {
		return fmt.Errorf("unknown auth type %q", def.AuthType)
	}

	site := &models.Site{
		Name:           def.Name,
		URL:            def.URL,
		Category:       def.Category,
		AuthType:       def.AuthType,
		ScrapingConfig: def.ScrapingConfig,
		Active:         def.Active == nil || *def.Active,
	}
	if site.Name == "" {
		site.Name = def.URL
	}

	existing, err := a.Storage.Sites().GetSiteByURL(ctx, def.URL)
	if err != nil && !errors.Is(err, models.ErrSiteNotFound) {
		return err
	}
	if existing != nil {
		site.ID = existing.ID
		site.EncryptedCredentials = existing.EncryptedCredentials
	} else {
		site.ID = common.NewSiteID()
	}

	if def.Credentials != nil {
		sealed, err := a.Vault.SealCredentials(def.Credentials)
		def.Credentials.Wipe()
		if err != nil {
			return fmt.Errorf("failed to seal credentials: %w", err)
		}
		site.EncryptedCredentials = sealed
	}

	if site.AuthType != models.AuthTypeNone && site.AuthType != models.AuthTypeCookie &&
		len(site.EncryptedCredentials) == 0 {
		a.Logger.Warn().
			Str("url", site.URL).
			Str("auth_type", string(site.AuthType)).
			Msg("Site requires credentials but none are stored; its jobs will fail auth")
	}

	return a.Storage.Sites().SaveSite(ctx, site)
}
