package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/crosslink/internal/config"
	"github.com/danmuck/crosslink/internal/host"
)

// popup is one named context the app opens at boot.
type popup struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// topology is the in-memory network linkctl boots.
type topology struct {
	AppURL  string
	Bridges []string
	Popups  []popup
}

// linkctl config.toml keys beyond the shared crosslink settings.
type fileTopology struct {
	AppURL  string   `toml:"app_url"`
	Bridges []string `toml:"bridges"`
	Popups  []popup  `toml:"popups"`
}

func defaultTopology() topology {
	return topology{AppURL: "https://app.local/"}
}

// loadConfig reads the crosslink settings and the topology from path. An
// empty path yields defaults with the environment applied.
func loadConfig(path string) (config.Config, topology, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		cfg := config.Default()
		if err := config.ApplyEnv(&cfg); err != nil {
			return config.Config{}, topology{}, err
		}
		return cfg, defaultTopology(), cfg.Validate()
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.Config{}, topology{}, err
	}
	topo, err := loadTopology(path)
	if err != nil {
		return config.Config{}, topology{}, err
	}
	return cfg, topo, nil
}

func loadTopology(path string) (topology, error) {
	topo := defaultTopology()

	var raw fileTopology
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return topology{}, fmt.Errorf("load linkctl topology: %w", err)
	}
	if meta.IsDefined("app_url") {
		topo.AppURL = strings.TrimSpace(raw.AppURL)
	}
	if meta.IsDefined("bridges") {
		for _, url := range raw.Bridges {
			if url = strings.TrimSpace(url); url != "" {
				topo.Bridges = append(topo.Bridges, url)
			}
		}
	}
	if meta.IsDefined("popups") {
		seen := make(map[string]struct{}, len(raw.Popups))
		for _, p := range raw.Popups {
			p.Name = strings.TrimSpace(p.Name)
			p.URL = strings.TrimSpace(p.URL)
			if p.Name == "" || p.URL == "" {
				return topology{}, fmt.Errorf("load linkctl topology: popup requires name and url, got %+v", p)
			}
			if _, dup := seen[p.Name]; dup {
				return topology{}, fmt.Errorf("load linkctl topology: duplicate popup name %q", p.Name)
			}
			seen[p.Name] = struct{}{}
			topo.Popups = append(topo.Popups, p)
		}
	}

	if _, err := host.DomainFromURL(topo.AppURL); err != nil {
		return topology{}, fmt.Errorf("load linkctl topology: app_url: %w", err)
	}
	return topo, nil
}

// origins returns every non-app origin the topology loads pages from.
func (t topology) origins() ([]string, error) {
	app, err := host.DomainFromURL(t.AppURL)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{app: {}}
	var out []string
	add := func(url string) error {
		origin, err := host.DomainFromURL(url)
		if err != nil {
			return err
		}
		if _, ok := seen[origin]; !ok {
			seen[origin] = struct{}{}
			out = append(out, origin)
		}
		return nil
	}
	for _, url := range t.Bridges {
		if err := add(url); err != nil {
			return nil, err
		}
	}
	for _, p := range t.Popups {
		if err := add(p.URL); err != nil {
			return nil, err
		}
	}
	return out, nil
}
