// Command mockprovider is a local OpenAI-compatible completion endpoint for
// exercising provider fallback by hand.
package main

import (
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/lmittmann/tint"
	"github.com/tidwall/gjson"
)

func main() {
	addr := flag.String("addr", ":3001", "listen address")
	delay := flag.Duration("delay", 0, "sleep before answering, to trigger gateway timeouts")
	status := flag.Int("status", http.StatusOK, "HTTP status to answer with")
	reply := flag.String("reply", "", "canned completion text; defaults to echoing the last user message")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.RFC3339}))

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		model := gjson.GetBytes(body, "model").String()
		last := gjson.GetBytes(body, "messages|@reverse|0.content").String()
		logger.Info("mock_request", "method", r.Method, "path", r.URL.Path, "model", model)

		select {
		case <-time.After(*delay):
		case <-r.Context().Done():
			return
		}

		if *status != http.StatusOK {
			http.Error(w, `{"error":{"message":"mock failure"}}`, *status)
			return
		}

		text := *reply
		if text == "" {
			text = "mock reply to: " + last
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": model,
			"choices": []any{
				map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": text}},
			},
		})
	})

	logger.Info("mock_provider_starting", "addr", *addr, "delay", *delay, "status", *status)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("mock_provider_failed", "err", err)
		os.Exit(1)
	}
}
