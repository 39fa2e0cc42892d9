package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	natspkg "github.com/brojonat/neardonate/service/nats"
	json "github.com/goccy/go-json"
)

// sseKeepaliveInterval is how often an idle stream gets a comment line.
var sseKeepaliveInterval = 10 * time.Second

// handleStreamDonations relays confirmed donations as Server-Sent Events.
// If account_id path parameter is empty, streams every donor. Otherwise,
// streams one donor's donations.
func handleStreamDonations(subscriber natspkg.Subscriber, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.PathValue("account_id")

		donorDesc := accountID
		if accountID == "" {
			donorDesc = "all donors"
		} else if err := validateAccountID(accountID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		logger.DebugContext(r.Context(), "SSE client connected",
			"donor", donorDesc,
			"remote_addr", r.RemoteAddr,
		)

		ctx := r.Context()
		events := make(chan *natspkg.DonationEvent, 10)
		doneChan := make(chan struct{})

		go func() {
			defer close(doneChan)
			err := subscriber.Subscribe(ctx, accountID, func(event *natspkg.DonationEvent) {
				select {
				case events <- event:
				case <-ctx.Done():
				}
			})
			if err != nil {
				logger.ErrorContext(ctx, "failed to subscribe to donations",
					"donor", donorDesc,
					"error", err,
				)
			}
		}()

		// Send initial connection event
		connected, _ := json.Marshal(map[string]string{"donor": donorDesc})
		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
		flusher.Flush()

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case event := <-events:
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal event", "error", err)
					continue
				}

				fmt.Fprintf(w, "event: donation\ndata: %s\n\n", data)
				flusher.Flush()

				logger.DebugContext(ctx, "sent donation event",
					"donor", donorDesc,
					"tx_hash", event.TxHash,
				)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"donor", donorDesc,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-doneChan:
				// Subscription ended
				fmt.Fprintf(w, "event: error\ndata: {\"error\":\"subscription closed\"}\n\n")
				flusher.Flush()
				return
			}
		}
	})
}
