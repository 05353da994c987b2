// Command qudagd starts a single node using its default, in-process
// configuration. Flag/environment parsing and multi-peer transport wiring
// are external collaborators per §1; this binary is the minimal
// process shell around package node, not a production deployment harness.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qudag/qudag/config"
	"github.com/qudag/qudag/gossip"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/logging"
	"github.com/qudag/qudag/node"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	zl, err := zap.NewProduction()
	if err != nil {
		return err
	}
	log := logging.New(zl)

	cfg := config.Default()
	reg := prometheus.NewRegistry()
	net := gossip.NewInMemoryNetwork()

	var selfID ids.NodeID
	n, err := node.New(selfID, cfg, reg, net, log)
	if err != nil {
		return err
	}
	net.RegisterPeer(selfID, n.Engine)

	if err := n.OpenPersistence(context.Background()); err != nil {
		return err
	}
	defer n.Persist.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("qudag node started", zap.Stringer("node", selfID))
	<-ctx.Done()
	log.Info("qudag node shutting down")
	return nil
}
