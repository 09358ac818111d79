package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Site is the optional YAML site file. Non-empty fields override the
// matching environment settings.
type Site struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Author     string `yaml:"author"`
	ContentDir string `yaml:"content_dir"`
	ImageDir   string `yaml:"image_dir"`
	BaseBranch string `yaml:"base_branch"`
}

func LoadSite(path string) (Site, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("read site file: %w", err)
	}
	var site Site
	if err := yaml.Unmarshal(raw, &site); err != nil {
		return Site{}, fmt.Errorf("parse site file %s: %w", path, err)
	}
	return site, nil
}

// Apply copies the site file's non-empty fields onto c.
func (s Site) Apply(c *Config) {
	if s.Author != "" {
		c.Author = s.Author
	}
	if s.ContentDir != "" {
		c.ContentDir = s.ContentDir
	}
	if s.ImageDir != "" {
		c.ImageDir = s.ImageDir
	}
	if s.BaseBranch != "" {
		c.BaseBranch = s.BaseBranch
	}
}

// LoadWithSite reads the environment and, when FOLIO_SITE_FILE is set,
// layers the site file on top.
func LoadWithSite() (Config, Site, error) {
	cfg := Load()
	if cfg.SiteFile == "" {
		return cfg, Site{}, nil
	}
	site, err := LoadSite(cfg.SiteFile)
	if err != nil {
		return cfg, Site{}, err
	}
	site.Apply(&cfg)
	return cfg, site, nil
}
