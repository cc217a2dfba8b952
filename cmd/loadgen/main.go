package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Posts randomized orders at the ingress to exercise every routing
// rule: US orders, single refills, multi-item baskets, and plain
// single-item defaults.

var (
	usSKUs      = []string{"US-STARTER-001", "US-REFILL-001"}
	refillSKUs  = []string{"REFILL-001", "REFILL-002", "REFILL-003"}
	genericSKUs = []string{"STARTER-001", "STARTER-002", "GIFT-001", "BUNDLE-001"}
)

type lineItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type order struct {
	OrderNumber         string            `json:"order_number"`
	LineItems           []lineItem        `json:"line_items"`
	PresentmentCurrency string            `json:"presentment_currency"`
	ShippingAddress     map[string]string `json:"shipping_address"`
}

func randomOrder(n int) order {
	o := order{
		OrderNumber:         fmt.Sprintf("LOAD-%d-%d", time.Now().Unix(), n),
		PresentmentCurrency: "GBP",
		ShippingAddress: map[string]string{
			"address1": "1 Test Street",
			"city":     "London",
			"country":  "GB",
		},
	}

	switch rand.Intn(4) {
	case 0: // US order
		o.PresentmentCurrency = "USD"
		o.LineItems = []lineItem{{SKU: usSKUs[rand.Intn(len(usSKUs))], Quantity: 1}}
	case 1: // single refill
		o.LineItems = []lineItem{{SKU: refillSKUs[rand.Intn(len(refillSKUs))], Quantity: 1}}
	case 2: // multi item
		count := 2 + rand.Intn(3)
		for i := 0; i < count; i++ {
			o.LineItems = append(o.LineItems, lineItem{SKU: genericSKUs[rand.Intn(len(genericSKUs))], Quantity: 1 + rand.Intn(2)})
		}
	default: // single item default
		o.LineItems = []lineItem{{SKU: genericSKUs[rand.Intn(len(genericSKUs))], Quantity: 1}}
	}
	return o
}

func main() {
	target := flag.String("target", "http://localhost:8080/api/orders", "ingress URL")
	total := flag.Int("n", 100, "number of orders to send")
	concurrency := flag.Int("c", 10, "concurrent senders")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	var accepted, rejected atomic.Int32
	var wg sync.WaitGroup
	work := make(chan int)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range work {
				body, _ := json.Marshal(randomOrder(n))
				resp, err := client.Post(*target, "application/json", bytes.NewReader(body))
				if err != nil {
					log.Printf("request failed: %v", err)
					rejected.Add(1)
					continue
				}
				resp.Body.Close()
				if resp.StatusCode == http.StatusAccepted {
					accepted.Add(1)
				} else {
					rejected.Add(1)
				}
			}
		}()
	}

	start := time.Now()
	for n := 0; n < *total; n++ {
		work <- n
	}
	close(work)
	wg.Wait()

	log.Printf("sent %d orders in %v: %d accepted, %d rejected",
		*total, time.Since(start).Round(time.Millisecond), accepted.Load(), rejected.Load())
}
