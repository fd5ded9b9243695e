package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frigate-occupancy/internal/config"
	"frigate-occupancy/internal/devices"
	"frigate-occupancy/internal/engine"
	"frigate-occupancy/internal/frigate"
	"frigate-occupancy/internal/logger"
	"frigate-occupancy/internal/metrics"
	"frigate-occupancy/internal/models"
	"frigate-occupancy/internal/mqtt"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env keeps broker credentials out of the config file; absence is fine
	if err := godotenv.Load(); err == nil {
		logger.Infof("loaded .env")
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("error loading config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Infof("loaded config from %s", *configPath)

	m := metrics.New()

	// 2. Initialize Clients and Registry
	frigateClient := frigate.NewClient(cfg.Frigate)
	registry := devices.NewRegistry(nil, cfg.Devices.BaseTopic, m)

	// 3. Initialize Engine
	eng := engine.NewEngine(registry, cfg.MQTT.EventsTopic, cfg.MQTT.TopicPrefix,
		engine.WithZoneDevices(cfg.Devices.ZoneDevices),
		engine.WithZoneObjectDevices(cfg.Devices.ZoneObjectDevices),
		engine.WithStaleEventTimeout(time.Duration(cfg.Engine.StaleEventTimeout)*time.Second),
		engine.WithMediaURLs(frigateClient),
		engine.WithMetrics(m),
	)

	mqttClient := mqtt.NewClient(cfg.MQTT, eng.IngestChannel(),
		mqtt.WithMetrics(m),
		mqtt.WithAvailabilityTopic(cfg.Devices.BaseTopic+"/availability"),
		mqtt.WithUpdateFilter(true),
	)
	registry.SetPublisher(mqttClient)

	// 4. Connect to MQTT before touching any device state: attribute
	// publishes are retained, and recovery must land on the broker.
	// Inbound messages buffer on the ingest channel until the engine runs.
	if err := mqttClient.Connect(); err != nil {
		logger.Fatalf("failed to connect to MQTT: %v", err)
	}
	defer mqttClient.Disconnect()

	// 5. Initial Topology + State Recovery from the Frigate API
	if topo, err := frigateClient.GetTopology(); err != nil {
		logger.Warnf("initial topology fetch failed: %v", err)
		m.IncTopologyRefresh("error")
	} else {
		eng.ApplyTopology(topo)
		m.IncTopologyRefresh("ok")
	}

	logger.Infof("querying Frigate API for active events...")
	if activeEvents, err := frigateClient.GetActiveEvents(); err != nil {
		logger.Warnf("failed to query Frigate API: %v", err)
	} else {
		logger.Infof("recovering %d active events from API", len(activeEvents))
		eng.Recover(activeEvents)
	}

	// 6. Run everything until a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return mqttClient.HealthLoop(ctx) })
	g.Go(func() error { return topologyLoop(ctx, frigateClient, eng, m, cfg.Frigate.PollInterval) })
	g.Go(func() error { return metrics.Serve(ctx, cfg.Metrics.Listen) })

	if err := g.Wait(); err != nil {
		logger.Fatalf("runner failed: %v", err)
	}
	logger.Infof("shut down cleanly")
}

// topologyLoop periodically re-fetches the camera/zone/object structure
// and hands it to the engine. A failed fetch keeps the previous topology;
// tombstoning only ever happens on a successful fetch.
func topologyLoop(ctx context.Context, client *frigate.Client, eng *engine.Engine, m *metrics.Metrics, intervalSec int) error {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			topo, err := client.GetTopology()
			if err != nil {
				logger.Warnf("topology fetch failed: %v", err)
				m.IncTopologyRefresh("error")
				continue
			}
			m.IncTopologyRefresh("ok")
			sendTopology(eng, topo)
		}
	}
}

// sendTopology is non-blocking: if the engine has not consumed the
// previous snapshot yet, this cycle is skipped rather than stalling the
// poller.
func sendTopology(eng *engine.Engine, topo *models.Topology) {
	select {
	case eng.TopologyChannel() <- topo:
	default:
	}
}
