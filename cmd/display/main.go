package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/azzam1122112-dot/school-display/internal/client"
)

// Headless display runtime: drives the same protocol a kiosk browser would,
// rendering to the terminal. Useful for soak tests and signage boxes without
// a browser.
func main() {
	log.SetFlags(log.LstdFlags)

	baseURL := flag.String("server", envOr("DISPLAY_SERVER", "http://localhost:8080"), "API base URL")
	token := flag.String("token", os.Getenv("DISPLAY_TOKEN"), "screen token")
	deviceID := flag.String("dk", envOr("DISPLAY_DEVICE_ID", hostDeviceID()), "device id")
	statePath := flag.String("state", envOr("DISPLAY_STATE", ".display-state.json"), "clock offset state file")
	lite := flag.Bool("lite", false, "cap render rate for weak hardware")
	flag.Parse()

	if *token == "" {
		log.Fatal("❌ screen token required (-token or DISPLAY_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime := client.New(client.Config{
		BaseURL:   strings.TrimRight(*baseURL, "/"),
		Token:     *token,
		DeviceID:  *deviceID,
		StatePath: *statePath,
		Lite:      *lite,
	}, newTermRenderer())

	if err := runtime.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("❌ Display runtime stopped: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// hostDeviceID derives a stable per-machine device id.
func hostDeviceID() string {
	host, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("display-%d", time.Now().UnixNano())
	}
	return "host-" + host
}
