// Command wscast runs pooled WebSocket broadcast servers and fans every
// line read from stdin out to all connected clients.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/wscast/internal/server"
)

func main() {
	var (
		portsFlag  = flag.String("ports", "9001", "comma-separated list of ports to serve")
		configPath = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	logger := server.NewLogger(os.Stderr)

	cfg := server.NewConfigFromEnv()
	if *configPath != "" {
		fileCfg, err := server.LoadConfigFile(*configPath)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	ports, err := parsePorts(*portsFlag)
	if err != nil {
		logger.Errorf("invalid -ports: %v", err)
		os.Exit(1)
	}

	metrics := server.NewMetrics(prometheus.DefaultRegisterer, "wscast")

	// The first server also serves the Prometheus endpoint. Handlers must
	// be registered before Start, so it is built directly rather than via
	// the pool.
	first := server.NewBroadcastServer(ports[0], cfg, logger, server.WithMetrics(metrics))
	first.AddHandler("/metrics", promhttp.Handler())
	if err := first.Start(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	servers := []*server.BroadcastServer{first}
	pool := server.NewPool(cfg, logger, server.WithMetrics(metrics))
	for _, port := range ports[1:] {
		srv, err := pool.EnsureServer(port)
		if err != nil {
			logger.Errorf("skipping port %d: %v", port, err)
			continue
		}
		servers = append(servers, srv)
	}

	go broadcastStdin(servers)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Infof("shutting down")
	pool.StopAll()
	first.Stop()
}

// broadcastStdin publishes each stdin line to every server.
func broadcastStdin(servers []*server.BroadcastServer) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		for _, srv := range servers {
			srv.Broadcast(line)
		}
	}
}

func parsePorts(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	ports := make([]int, 0, len(parts))
	seen := make(map[int]struct{}, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		port, err := strconv.Atoi(trimmed)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("bad port %q", part)
		}
		if _, dup := seen[port]; dup {
			continue
		}
		seen[port] = struct{}{}
		ports = append(ports, port)
	}

	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports given")
	}
	return ports, nil
}
