package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/gridscan/internal/metrics"
	"github.com/banshee-data/gridscan/internal/monitor"
	"github.com/banshee-data/gridscan/internal/scan"
	"github.com/banshee-data/gridscan/internal/scanstore"
)

var (
	listen = flag.String("listen", ":8080", "Listen address")
	dbFile = flag.String("db", "scans.db", "Path to the scan run database")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	store, err := scanstore.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open scan store: %v", err)
	}
	defer store.Close()

	runner := scan.NewRunner(store)

	server := monitor.NewServer(monitor.Config{
		Address:  *listen,
		Runner:   runner,
		Store:    store,
		Registry: metrics.DefaultRegistry(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	<-ctx.Done()
	// A scan in flight aborts at the next point boundary.
	runner.Stop()
	wg.Wait()
	log.Print("shutdown complete")
}
