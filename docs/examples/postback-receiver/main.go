// AffTrack Postback Receiver Example
//
// This is a minimal example of a partner endpoint receiving AffTrack
// postbacks. Point a campaign's postback URL at it, for example:
//
//	http://localhost:9000/postback?cid={click_id}&txn={order_id}&amount={amount}&currency={currency}&type={type}&sub1={sub1}
//
// Usage:
//
//	go run main.go
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
)

// received keeps an in-memory ledger of seen transaction ids so
// duplicate deliveries can be answered idempotently.
var (
	mu       sync.Mutex
	received = make(map[string]int)
)

func main() {
	http.HandleFunc("/postback", postbackHandler)
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting postback receiver on :9000")
	log.Println("Endpoint: http://localhost:9000/postback")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func postbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	clickID := q.Get("cid")
	txn := q.Get("txn")

	amount, err := strconv.ParseFloat(q.Get("amount"), 64)
	if err != nil && q.Get("amount") != "" {
		http.Error(w, "Bad amount", http.StatusBadRequest)
		return
	}

	mu.Lock()
	received[txn]++
	deliveries := received[txn]
	mu.Unlock()

	if deliveries > 1 {
		// Same transaction delivered again; acknowledge without
		// double-crediting.
		log.Printf("duplicate delivery #%d for txn %s", deliveries, txn)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "duplicate"})
		return
	}

	log.Printf("✓ Received %s postback", q.Get("type"))
	log.Printf("  Click ID: %s", clickID)
	log.Printf("  Txn:      %s", txn)
	log.Printf("  Amount:   %.2f %s", amount, q.Get("currency"))
	log.Printf("  Sub1:     %s", q.Get("sub1"))

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
