/*
	Vestry
	Copyright (c) 2025 The Vestry Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package vstapp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vestryhq/vestry/cms"
	"go.uber.org/zap"
)

// Config describes the server configuration.
// Config values must not be copied (i.e. use pointers).
type Config struct {
	sync.RWMutex `json:"-"`

	// The listen address to bind the socket to.
	Listen string `json:"listen,omitempty"`

	// Serves the website from this folder on disk instead of
	// the embedded file system. This can make local, rapid
	// development easier so you don't have to recompile for
	// every website change. If empty, website assets that are
	// compiled into the binary will be used by default.
	WebsiteDir string `json:"website_dir,omitempty"`

	// Base URL of the content API that stores the photos,
	// documents, and events.
	APIBase string `json:"api_base,omitempty"`

	// Member ID recorded as the creator on new photo batches.
	CreatorMemberID int64 `json:"creator_member_id,omitempty"`

	log *zap.Logger
}

func (cfg *Config) listenAddr() string {
	cfg.RLock()
	defer cfg.RUnlock()
	if envVal := os.Getenv("VESTRY_ADMIN_ADDR"); envVal != "" {
		return envVal
	}
	if cfg.Listen != "" {
		return cfg.Listen
	}
	return defaultAdminAddr
}

func (cfg *Config) apiBase() string {
	cfg.RLock()
	defer cfg.RUnlock()
	if envVal := os.Getenv("VESTRY_API_BASE"); envVal != "" {
		return envVal
	}
	if cfg.APIBase != "" {
		return cfg.APIBase
	}
	return defaultAPIBase
}

func (cfg *Config) creatorMemberID() int64 {
	cfg.RLock()
	defer cfg.RUnlock()
	return cfg.CreatorMemberID
}

func (cfg *Config) fillDefaults() {
	cfg.Lock()
	defer cfg.Unlock()
	if cfg.log == nil {
		cfg.log = cms.Log.Named("config").With(zap.Time("loaded", time.Now()))
	}
}

// autosave persists the config to disk by obtaining a read lock, so it is safe for concurrent use.
func (cfg *Config) autosave() error {
	cfg.RLock()
	defer cfg.RUnlock()
	if err := cfg.unsyncedSave(); err != nil {
		return err
	}
	return nil
}

func (cfg *Config) unsyncedSave() error {
	filename := DefaultConfigFilePath()
	err := os.MkdirAll(filepath.Dir(filename), 0755)
	if err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	cfgFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer cfgFile.Close()
	enc := json.NewEncoder(cfgFile)
	enc.SetIndent("", "\t")
	if err = enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if cfg.log != nil {
		cfg.log.Info("saved config file", zap.String("path", filename))
	}
	return nil
}

// DefaultConfigFilePath returns the file path where
// configuration is persisted.
func DefaultConfigFilePath() string {
	cfgDir, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(cfgDir, "vestry", "config.json")
	}
	cfgDir, err = os.UserHomeDir()
	if err == nil {
		return filepath.Join(cfgDir, ".vestry", "config.json")
	}
	return filepath.Join(".vestry", "config.json")
}
