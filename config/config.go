// Package config loads the scheduler limits and bootstrap server list from
// a YAML file, and hot-reloads the scheduler limits whenever that file
// changes on disk (spec.md's ambient config-layer expansion).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hydranode/hydranode/addr"
	"github.com/hydranode/hydranode/sched"
)

// Limits mirrors sched.Limits in YAML-friendly field names; zero means
// unlimited for the byte-rate fields, matching sched.Limits' own zero
// convention.
type Limits struct {
	UpKBytesPerSec   int64 `yaml:"up_kbytes_per_sec"`
	DownKBytesPerSec int64 `yaml:"down_kbytes_per_sec"`
	MaxConns         int   `yaml:"max_conns"`
	MaxHalfOpen      int   `yaml:"max_half_open"`
}

// ToSched converts the YAML-friendly KB/s fields into sched.Limits'
// bytes/s fields.
func (l Limits) ToSched() sched.Limits {
	return sched.Limits{
		UpBytesPerSec:   l.UpKBytesPerSec * 1024,
		DownBytesPerSec: l.DownKBytesPerSec * 1024,
		MaxConns:        l.MaxConns,
		MaxHalfOpen:     l.MaxHalfOpen,
	}
}

// Config is the top-level YAML document this package loads.
type Config struct {
	Nick        string   `yaml:"nick"`
	ListenPort  uint16   `yaml:"listen_port"`
	Limits      Limits   `yaml:"limits"`
	Servers     []string `yaml:"servers"` // "host:port" entries, host may be a name
	ServerMet   string   `yaml:"server_met"`
	PartDataDir string   `yaml:"part_data_dir"`
}

// BootstrapEndpoints resolves every literal IP:port entry in Servers,
// skipping (not erroring on) entries that need DNS resolution — those are
// handled by edonkey/server.ServerList.ResolveHost once the scheduler is
// up, since hostname resolution needs a context and shouldn't block
// config load.
func (c *Config) BootstrapEndpoints() ([]addr.Endpoint, []string) {
	var endpoints []addr.Endpoint
	var hostnames []string
	for _, s := range c.Servers {
		if ep, err := addr.ParseEndpoint(s); err == nil {
			endpoints = append(endpoints, ep)
		} else {
			hostnames = append(hostnames, s)
		}
	}
	return endpoints, hostnames
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}
