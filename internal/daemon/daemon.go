// Package daemon wires the DNS frontend and IPC server together and
// owns their shared lifecycle: starting both on Run, stopping both and
// waiting for them to exit on Close.
package daemon

import (
	"context"
	"sync"

	"github.com/lc/blockandfocus/internal/dnsfrontend"
	"github.com/lc/blockandfocus/internal/ipc"
	"github.com/lc/blockandfocus/internal/log"
)

// Daemon runs the DNS frontend and IPC server as two long-running tasks.
type Daemon struct {
	dns *dnsfrontend.Server
	ipc *ipc.Server

	dnsAddr  string
	ipcPath  string
	wg       sync.WaitGroup
	cancelFn context.CancelFunc
}

// New creates a Daemon that will listen for DNS on dnsAddr and IPC on
// ipcPath once Run is called.
func New(dns *dnsfrontend.Server, ipcSrv *ipc.Server, dnsAddr, ipcPath string) *Daemon {
	return &Daemon{dns: dns, ipc: ipcSrv, dnsAddr: dnsAddr, ipcPath: ipcPath}
}

// Run starts the DNS accept loop and the IPC accept loop as independent
// goroutines tracked by a WaitGroup. Cancelling ctx stops the DNS loop
// only; Close stops both.
func (d *Daemon) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancelFn = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		log.Infof("daemon: dns frontend listening on %s", d.dnsAddr)
		if err := d.dns.ListenAndServe(runCtx, d.dnsAddr); err != nil {
			log.Errorf("daemon: dns frontend stopped: %v", err)
		}
	}()
	go func() {
		defer d.wg.Done()
		log.Infof("daemon: ipc server listening on %s", d.ipcPath)
		if err := d.ipc.ListenAndServe(d.ipcPath); err != nil {
			log.Errorf("daemon: ipc server stopped: %v", err)
		}
	}()

	log.Info("daemon: started")
}

// Close cancels the run context and waits for both accept loops to
// return.
func (d *Daemon) Close() {
	if d.cancelFn != nil {
		d.cancelFn()
	}
	_ = d.dns.Close()
	_ = d.ipc.Close()
	d.wg.Wait()
	log.Info("daemon: stopped")
}
