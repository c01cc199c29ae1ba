// Command mock-analyzer serves canned deep-analysis responses for local
// development of the triage engine.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type logIssue struct {
	Signature string    `json:"signature"`
	Level     string    `json:"level"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/analyze/logs", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		now := time.Now()
		writeJSON(w, map[string]any{
			"issues": []logIssue{
				{
					Signature: "timeout contacting inventory service for order <n>",
					Level:     "ERROR",
					Count:     14,
					FirstSeen: now.Add(-9 * time.Minute),
					LastSeen:  now.Add(-1 * time.Minute),
				},
				{
					Signature: "retrying payment gateway call for order <n>",
					Level:     "WARNING",
					Count:     5,
					FirstSeen: now.Add(-12 * time.Minute),
					LastSeen:  now.Add(-2 * time.Minute),
				},
			},
		})
	})

	mux.HandleFunc("/api/v1/analyze/rca", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"root_cause": "inventory service connection pool exhaustion causing cascading order timeouts",
			"recommendations": []string{
				"increase inventory service connection pool size",
				"add circuit breaker on the inventory client",
				"review recent deploys to the inventory service",
			},
		})
	})

	logger := log.New(log.Writer(), "analyzer-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8081",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8081")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
