// Command mirakctl runs the tuner manager and EPG engine control plane:
// it loads a YAML configuration, opens the configured tuners for the EPG
// engine's periodic sweeps, and exposes a metrics endpoint for ops.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirakctl/mirakctl/internal/config"
	"github.com/mirakctl/mirakctl/internal/epgengine"
	"github.com/mirakctl/mirakctl/internal/metrics"
	"github.com/mirakctl/mirakctl/internal/registry"
	"github.com/mirakctl/mirakctl/internal/tunermgr"
)

func main() {
	configPath := flag.String("config", "mirakctl.yml", "Path to YAML configuration file")
	metricsAddr := flag.String("metrics-addr", ":9090", "Metrics HTTP listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	reg := registry.New()
	m := metrics.New(prometheus.DefaultRegisterer)

	tunerMgr := tunermgr.New(cfg.Tuners)
	epg := epgengine.New(cfg, tunerMgr, reg, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tunerMgr.Run(ctx)
	go epg.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	go pollTunerMetrics(ctx, tunerMgr, m)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")
	cancel()
}
