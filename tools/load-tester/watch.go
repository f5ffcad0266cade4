package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/V4T54L/alert-feed/internal/domain"
)

type watchOptions struct {
	duration time.Duration
	verbose  bool
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to the WebSocket feed and report received alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 30*time.Second, "How long to watch (0 watches until interrupted)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print every received alert")
	return cmd
}

func feedURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/logs/ws"
	return u.String(), nil
}

func runWatch(parent context.Context, opts *watchOptions) error {
	target, err := feedURL(baseURL)
	if err != nil {
		return err
	}

	ctx := parent
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, opts.duration)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	defer conn.Close()
	log.Printf("Watching %s", target)

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	start := time.Now()
	var received, malformed int
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var event domain.Event
		if err := json.Unmarshal(data, &event); err != nil {
			malformed++
			continue
		}
		received++
		if opts.verbose {
			log.Printf("%s %-28s %-15s %-11s %v", event.Timestamp.Format(time.RFC3339Nano), event.Type, event.SourceIP, event.ActionTaken, event.Details)
		}
	}

	elapsed := time.Since(start)
	log.Println("Watch finished.")
	log.Printf("Received: %d, Malformed: %d, Rate: %.2f/s", received, malformed, float64(received)/elapsed.Seconds())
	if ctx.Err() == nil {
		return fmt.Errorf("feed closed by server")
	}
	return nil
}
