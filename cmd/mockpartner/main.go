package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

// Simulates the fulfillment partner APIs: accepts order POSTs, assigns
// tracking numbers, and fails a configurable fraction of requests so
// retry behavior can be exercised locally.

var orderCounter atomic.Int64

func main() {
	addr := flag.String("addr", ":4000", "listen address")
	errorRate := flag.Float64("error-rate", 0.05, "fraction of requests answered with 502")
	delay := flag.Duration("delay", 100*time.Millisecond, "simulated processing delay")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /partners/{partner}/orders", func(w http.ResponseWriter, r *http.Request) {
		partner := r.PathValue("partner")

		var payload struct {
			OrderNumber string `json:"order_number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}

		time.Sleep(*delay)

		if rand.Float64() < *errorRate {
			log.Printf("[%s] rejecting order %s", partner, payload.OrderNumber)
			http.Error(w, "partner temporarily unavailable", http.StatusBadGateway)
			return
		}

		n := orderCounter.Add(1)
		tracking := fmt.Sprintf("TRACK-%s-%d-%d", partner, time.Now().Unix(), n)
		log.Printf("[%s] accepted order %s, tracking %s", partner, payload.OrderNumber, tracking)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"tracking_number": tracking})
	})

	log.Printf("mock partner server listening on %s (error rate %.2f)", *addr, *errorRate)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
