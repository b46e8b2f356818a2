// Mockupstream is a stand-in for the Gemini generateContent endpoint, used to
// run the proxy locally without a real API key.
//
// Usage:
//
//	go run ./scripts/mockupstream -port 9000 -key dev-key
//	UPSTREAM_BASE_URL=http://localhost:9000 GEMINI_API_KEY=dev-key go run ./cmd
//
// Every response echoes the first text part of the request. -fail-every N
// answers every Nth request with 503 to exercise the proxy's error path.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
	Index        int     `json:"index"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion"`
	ResponseID    string        `json:"responseId"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func main() {
	port := flag.Int("port", 9000, "port to listen on")
	key := flag.String("key", "", "API key to require (empty accepts any key)")
	latency := flag.Duration("latency", 0, "artificial delay before answering")
	failEvery := flag.Int("fail-every", 0, "answer every Nth request with 503 (0 disables)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	var served atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/{target}", func(w http.ResponseWriter, r *http.Request) {
		model, action, ok := strings.Cut(r.PathValue("target"), ":")
		if !ok || action != "generateContent" {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "unknown method")
			return
		}

		if *key != "" && r.URL.Query().Get("key") != *key {
			writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "API key not valid. Please pass a valid API key.")
			return
		}

		n := served.Add(1)
		if *failEvery > 0 && n%int64(*failEvery) == 0 {
			writeAPIError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "The model is overloaded. Please try again later.")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "could not read body")
			return
		}

		var req generateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("Invalid JSON payload received. %v", err))
			return
		}

		log.Info("request",
			slog.String("model", model),
			slog.String("from", r.RemoteAddr),
			slog.Int("bytes", len(body)))

		if *latency > 0 {
			time.Sleep(*latency)
		}

		prompt := firstText(req)
		resp := generateResponse{
			Candidates: []candidate{{
				Content: content{
					Parts: []part{{Text: "echo: " + prompt}},
					Role:  "model",
				},
				FinishReason: "STOP",
			}},
			UsageMetadata: usageMetadata{
				PromptTokenCount:     len(strings.Fields(prompt)),
				CandidatesTokenCount: len(strings.Fields(prompt)) + 1,
				TotalTokenCount:      2*len(strings.Fields(prompt)) + 1,
			},
			ModelVersion: model,
			ResponseID:   uuid.NewString(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting mock upstream", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func firstText(req generateRequest) string {
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

func writeAPIError(w http.ResponseWriter, code int, status, msg string) {
	var e apiError
	e.Error.Code = code
	e.Error.Message = msg
	e.Error.Status = status

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(e)
}
