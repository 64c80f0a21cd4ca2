// Command hydranode runs a standalone eDonkey2000 client: it logs into one
// server from the configured list, offers shared files, tracks sources for
// active downloads, and answers/ initiates peer transfers.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/config"
	"github.com/hydranode/hydranode/edonkey/server"
)

// args is the command-line surface, parsed by go-arg the same struct-tag
// way the teacher's own binaries are shaped for (no in-repo precedent to
// follow here since this is the module's first cmd/, so the struct tags
// follow go-arg's standard documented form).
type cliArgs struct {
	Config string `arg:"--config" help:"path to the YAML config file" default:"hydranode.yaml"`
}

func main() {
	defer envpprof.Stop()

	var args cliArgs
	arg.MustParse(&args)

	logger := log.Default

	cfg, err := config.Load(args.Config)
	if err != nil {
		logger.Levelf(log.Error, "hydranode: %v", err)
		os.Exit(1)
	}

	id, err := loadOrCreateIdentity(cfg.PartDataDir)
	if err != nil {
		logger.Levelf(log.Error, "hydranode: %v", err)
		os.Exit(1)
	}

	d := NewDaemon(cfg, id, logger)

	if err := loadServerMet(d, cfg, logger); err != nil {
		logger.Levelf(log.Info, "hydranode: %v", err)
	}
	bootstrapServerList(d, cfg, logger)

	if err := d.startListening(); err != nil {
		logger.Levelf(log.Error, "hydranode: %v", err)
		os.Exit(1)
	}
	defer d.Close()

	if next, ok := d.serverList.NextForUDP(); ok {
		d.serverConn.ConnectTo(next)
	}

	if watcher, err := config.WatchLimits(args.Config, d.backend, logger); err != nil {
		logger.Levelf(log.Debug, "hydranode: config watch disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.run(ctx)

	if d.metStore != nil {
		if err := d.metStore.Save(d.serverList); err != nil {
			logger.Levelf(log.Debug, "hydranode: save server.met: %v", err)
		}
	}
}

// loadServerMet opens cfg.ServerMet (if set) and loads any previously
// known servers into the Daemon's ServerList, the same persisted-state
// role server.met plays in the original client.
func loadServerMet(d *Daemon, cfg *config.Config, logger log.Logger) error {
	if cfg.ServerMet == "" {
		return nil
	}
	store, err := server.OpenStore(cfg.ServerMet)
	if err != nil {
		return err
	}
	d.metStore = store
	return store.LoadInto(d.serverList)
}

// bootstrapServerList adds every literal IP:port entry from cfg.Servers
// directly, then resolves the remaining hostnames via dnscache, since
// that needs a context and shouldn't block config load itself
// (config.Config.BootstrapEndpoints' own doc comment).
func bootstrapServerList(d *Daemon, cfg *config.Config, logger log.Logger) {
	endpoints, hostnames := cfg.BootstrapEndpoints()
	for _, ep := range endpoints {
		d.serverList.Add(&server.Server{Endpoint: ep, StaticIP: true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, hostport := range hostnames {
		host, portStr, err := net.SplitHostPort(hostport)
		if err != nil {
			logger.Levelf(log.Debug, "hydranode: skipping malformed server entry %q: %v", hostport, err)
			continue
		}
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			logger.Levelf(log.Debug, "hydranode: skipping malformed server entry %q: %v", hostport, err)
			continue
		}
		ep, err := d.serverList.ResolveHost(ctx, host, uint16(p))
		if err != nil {
			logger.Levelf(log.Debug, "hydranode: resolving %q: %v", hostport, err)
			continue
		}
		d.serverList.Add(&server.Server{Endpoint: ep, Name: host})
	}
}

// run drives the periodic housekeeping loop: scheduler ticks, server
// keep-alive/source-request draining, and the UDP stat-query round robin,
// until ctx is cancelled (spec.md §4.J's various "every N minutes" driver
// behaviors, all collapsed onto one ticker the way a single-process
// daemon naturally would).
func (d *Daemon) run(ctx context.Context) {
	tick := time.NewTicker(schedulerTickInterval)
	defer tick.Stop()
	udpQuery := time.NewTicker(udpQueryInterval)
	defer udpQuery.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			d.backend.Tick()
			d.serverConn.MaybeSendKeepAlive()
			d.serverConn.DrainSourceRequests()
			d.querier.CheckTimeouts(udpQueryTimeout)
		case <-udpQuery.C:
			d.querier.PingNext()
		}
	}
}

const (
	schedulerTickInterval = 250 * time.Millisecond
	udpQueryInterval      = 5 * time.Second
	udpQueryTimeout       = 15 * time.Second
)
