// Command blockandfocusd is the BlockAndFocus background daemon.
//
// It loads configuration, binds the DNS frontend and the Unix-socket
// control API, and serves both until it receives an interrupt signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lc/blockandfocus/internal/config"
	"github.com/lc/blockandfocus/internal/daemon"
	"github.com/lc/blockandfocus/internal/dnsfrontend"
	"github.com/lc/blockandfocus/internal/dnsresolver"
	"github.com/lc/blockandfocus/internal/ipc"
	"github.com/lc/blockandfocus/internal/log"
	"github.com/lc/blockandfocus/internal/state"
)

const (
	prodSocketPath = "/var/run/blockandfocus.sock"
	devSocketPath  = "/tmp/blockandfocus-dev.sock"
	upstreamDNS    = "1.1.1.1:53"
	dnsTimeout     = 5 * time.Second
)

func main() {
	devMode := os.Getenv("BLOCKANDFOCUS_DEV") != ""

	store := config.New()
	cfg, err := store.Load(devMode)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if os.Geteuid() != 0 && !devMode {
		log.Fatal("blockandfocusd must run as root")
	}

	st := state.New(cfg, store)

	// Upstream resolution is hard-coded to a single well-known resolver;
	// Config.DNS.Upstreams is parsed and validated but advisory only.
	resolver := dnsresolver.New(dnsTimeout, dnsresolver.WithResolvers([]string{upstreamDNS}))

	dnsSrv := dnsfrontend.New(st, resolver)
	ipcSrv := ipc.New(st)

	sockPath := prodSocketPath
	if devMode {
		sockPath = devSocketPath
	}
	dnsAddr := cfg.DNS.ListenAddress + ":" + strconv.Itoa(cfg.DNS.ListenPort)

	d := daemon.New(dnsSrv, ipcSrv, dnsAddr, sockPath)

	ctx, cancel := context.WithCancel(context.Background())
	d.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down…")
	cancel()
	d.Close()
}
