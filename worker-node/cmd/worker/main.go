package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"goforward/pkg/styles"
	"goforward/worker-node/internal/client"
)

func main() {
	url := strings.TrimSpace(os.Getenv("COORDINATOR_ADDR"))
	if url == "" {
		url = "ws://localhost:8080/ws_connect"
	}
	if !strings.Contains(url, "://") {
		url = "ws://" + url + "/ws_connect"
	}

	concurrency, _ := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY"))
	msgpack, _ := strconv.ParseBool(os.Getenv("WORKER_MSGPACK"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := client.NewClient(client.Options{
		URL:         url,
		Msgpack:     msgpack,
		Concurrency: concurrency,
	}, client.Echo)

	styles.PrintFS("info", "[WORKER] Conectando a %s", url)
	if err := worker.Run(ctx); err != nil {
		styles.PrintFS("error", "[WORKER] %v", err)
		os.Exit(1)
	}
}
