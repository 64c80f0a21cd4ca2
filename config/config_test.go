package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/sched"
)

const sampleYAML = `
nick: hydrauser
listen_port: 4662
limits:
  up_kbytes_per_sec: 50
  down_kbytes_per_sec: 0
  max_conns: 200
  max_half_open: 8
servers:
  - "1.2.3.4:4661"
  - "emule.example.org:4661"
server_met: server.met
part_data_dir: parts
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hydranode.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesLimitsAndServers(t *testing.T) {
	path := writeSample(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Nick != "hydrauser" || cfg.ListenPort != 4662 {
		t.Fatalf("unexpected identity fields: %+v", cfg)
	}
	if cfg.Limits.UpKBytesPerSec != 50 || cfg.Limits.MaxConns != 200 {
		t.Fatalf("unexpected limits: %+v", cfg.Limits)
	}
	sl := cfg.Limits.ToSched()
	if sl.UpBytesPerSec != 50*1024 {
		t.Fatalf("expected KB/s to bytes/s conversion, got %d", sl.UpBytesPerSec)
	}
}

func TestBootstrapEndpointsSplitsLiteralsFromHostnames(t *testing.T) {
	path := writeSample(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	endpoints, hostnames := cfg.BootstrapEndpoints()
	if len(endpoints) != 1 || len(hostnames) != 1 {
		t.Fatalf("expected 1 literal + 1 hostname, got %d/%d", len(endpoints), len(hostnames))
	}
	if hostnames[0] != "emule.example.org:4661" {
		t.Fatalf("unexpected hostname entry: %v", hostnames[0])
	}
}

func TestWatchLimitsSurvivesReloadAndClose(t *testing.T) {
	path := writeSample(t)
	backend := sched.New(sched.Limits{}, nil, nil, log.Default)

	w, err := WatchLimits(path, backend, log.Default)
	if err != nil {
		t.Fatalf("WatchLimits: %v", err)
	}

	if err := os.WriteFile(path, []byte(sampleYAML+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the watcher goroutine observe the write

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
