// Command healthcheck checks the bot's health endpoints for the container runtime. By default
// it checks /livez; with -ready it checks /readyz, which also requires the
// database and a logged-in WhatsApp session.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
)

const defaultPort = "3001"

func main() {
	ready := flag.Bool("ready", false, "check /readyz instead of /livez")
	timeout := flag.Duration("timeout", 8*time.Second, "request timeout")
	flag.Parse()

	port := os.Getenv(config.EnvPort)
	if port == "" {
		port = defaultPort
	}
	path := "/livez"
	if *ready {
		path = "/readyz"
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := check(ctx, http.DefaultClient, "http://localhost:"+port+path); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// check reports nil when url answers 200. Otherwise the error carries the
// status and the reason field of the JSON body when present.
func check(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if body.Reason != "" {
		return fmt.Errorf("%s: %s", resp.Status, body.Reason)
	}
	return errors.New(resp.Status)
}
