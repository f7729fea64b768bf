// Package sse fans scan attempts out to gate monitors over server-sent events.
// Delivery is best effort: a slow subscriber misses events rather than slowing
// the gate.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"paintball-ticketing/internal/models"
)

const (
	clientBuffer      = 16
	heartbeatInterval = 20 * time.Second
)

type subscriber struct {
	location string
	ch       chan models.TicketScan
}

// ScanFeed is safe for concurrent use. The zero value is not usable; use NewScanFeed.
type ScanFeed struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

func NewScanFeed() *ScanFeed {
	return &ScanFeed{clients: make(map[*subscriber]struct{})}
}

// Subscribe registers a client for scans at location, or everywhere when
// location is empty. The channel is closed once ctx is done.
func (f *ScanFeed) Subscribe(ctx context.Context, location string) <-chan models.TicketScan {
	sub := &subscriber{location: location, ch: make(chan models.TicketScan, clientBuffer)}

	f.mu.Lock()
	f.clients[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.clients, sub)
		close(sub.ch)
		f.mu.Unlock()
	}()
	return sub.ch
}

// Publish never blocks. Calling it on a nil feed is a no-op.
func (f *ScanFeed) Publish(scan models.TicketScan) {
	if f == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.clients {
		if sub.location != "" && sub.location != scan.Location {
			continue
		}
		select {
		case sub.ch <- scan:
		default:
		}
	}
}

func (f *ScanFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// ServeHTTP streams scans as "scan" events; ?location= narrows the feed.
func (f *ScanFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	scans := f.Subscribe(r.Context(), r.URL.Query().Get("location"))
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case scan, ok := <-scans:
			if !ok {
				return
			}
			data, err := json.Marshal(scan)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: scan\ndata: %s\n\n", scan.ID, data)
			flusher.Flush()
		}
	}
}
