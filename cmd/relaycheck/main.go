package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/park285/chessduel/internal/chess"
	"github.com/park285/chessduel/internal/relay"
)

// relaycheck checks a running relay: the status endpoint first, then a
// throwaway match with two peers exchanging one move.
func main() {
	statusURL := os.Getenv("RELAY_STATUS_URL")
	wsURL := os.Getenv("RELAY_URL")

	if statusURL == "" {
		log.Fatal("RELAY_STATUS_URL is required")
	}

	client := relay.NewStatusClient(statusURL, relay.WithStatusTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		log.Printf("/healthz error: %v", err)
	} else {
		log.Printf("/healthz ok: status=%s active=%d uptime=%ds", health.Status, health.ActiveMatches, health.UptimeSeconds)
	}
	if matches, err := client.Matches(ctx); err != nil {
		log.Printf("/matches error: %v", err)
	} else {
		log.Printf("/matches ok: %d recorded", len(matches))
	}

	if wsURL == "" {
		log.Println("RELAY_URL not set; skipping match check")
		return
	}

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	code := "relaycheck-" + time.Now().Format("150405.000")

	host, err := relay.Dial(cctx, wsURL, code)
	if err != nil {
		log.Printf("host connect error: %v", err)
		return
	}
	defer host.Close()
	guest, err := relay.Dial(cctx, wsURL, code)
	if err != nil {
		log.Printf("guest connect error: %v", err)
		return
	}
	defer guest.Close()

	cfg := relay.GameConfig{Color: "white", TimeMinutes: 1, Variant: "standard"}
	if err := host.SendConfig(cctx, cfg); err != nil {
		log.Printf("host config error: %v", err)
		return
	}
	if err := guest.SendConfig(cctx, cfg); err != nil {
		log.Printf("guest config error: %v", err)
		return
	}
	if _, err := host.WaitForStart(cctx); err != nil {
		log.Printf("host start error: %v", err)
		return
	}
	assigned, err := guest.WaitForStart(cctx)
	if err != nil {
		log.Printf("guest start error: %v", err)
		return
	}
	log.Printf("match %s started: guest plays %s", code, assigned.Color)

	mv, _ := chess.ParseUCI("e2e4")
	if err := host.SendMove(mv); err != nil {
		log.Printf("send move error: %v", err)
		return
	}
	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline.C:
			log.Printf("move relay timed out")
			return
		case <-tick.C:
			if got, ok := guest.TryReceiveMove(); ok {
				log.Printf("move relayed: %s", got.UCI())
				_ = host.SendGameOver()
				return
			}
		}
	}
}
