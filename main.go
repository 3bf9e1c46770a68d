package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal("config", "err", err)
	}

	store, err := connectDB(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", "err", err)
	}
	defer store.Close()

	proc := &processor{
		devices:            store,
		store:              store,
		sinks:              []recordSink{store},
		previewChars:       cfg.LogPayloadPreviewChars,
		requireKnownDevice: cfg.RequireKnownDevice,
	}

	if cfg.pubsubEnabled() {
		ps, err := newPubSubSink(ctx, cfg)
		if err != nil {
			logger.Fatal("pubsub", "err", err)
		}
		defer ps.Close()
		proc.sinks = append(proc.sinks, ps)
	}
	if cfg.kafkaEnabled() {
		ks := newKafkaSink(cfg)
		defer ks.Close()
		proc.sinks = append(proc.sinks, ks)
		if ks.dlq != nil {
			proc.dlq = ks
		}
	}
	if cfg.influxEnabled() {
		is := newInfluxSink(cfg)
		defer is.Close()
		proc.sinks = append(proc.sinks, is)
	}

	if cfg.mqttEnabled() {
		client := buildMQTTClient(cfg, proc)
		go func() {
			if err := connectWithBackoff(ctx, client, time.Second, 30*time.Second); err != nil {
				mqttLog.Warn("gave up connecting", "err", err)
			}
		}()
		defer client.Disconnect(250)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           newMux(proc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("parser listening", "addr", srv.Addr, "sinks", len(proc.sinks))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ListenAndServe", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
}

func newMux(proc *processor) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("parser ok"))
	})
	mux.HandleFunc("/message", proc.handleMessage)
	mux.HandleFunc("/decode", proc.handleDecode)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("parser"))
	})
	return mux
}

func readMessage(w http.ResponseWriter, r *http.Request, trace string) (MQTTMessage, bool) {
	var in MQTTMessage
	if r.Method != http.MethodPost {
		http.Error(w, "only POST", http.StatusMethodNotAllowed)
		return in, false
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		logger.Warn("MSG decode error", "trace", trace, "err", err)
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return in, false
	}
	return in, true
}

func (p *processor) handleMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	trace := genTraceID()

	in, ok := readMessage(w, r, trace)
	if !ok {
		return
	}
	rec, err := p.handle(r.Context(), trace, in)
	if err != nil {
		logger.Warn("MSG failed", "trace", trace, "err", err)
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"message_id":  in.MessageID,
		"beacon_type": rec.Type.String(),
		"ms":          time.Since(start).Milliseconds(),
	})
}

// handleDecode decodes the advertisement and returns the record; nothing is
// stored or published.
func (p *processor) handleDecode(w http.ResponseWriter, r *http.Request) {
	trace := genTraceID()

	in, ok := readMessage(w, r, trace)
	if !ok {
		return
	}
	normalize(&in)
	if !isLikelyHex(in.Payload) {
		http.Error(w, "payload is not hex-like", http.StatusBadRequest)
		return
	}
	rec, err := p.decode(in)
	if err != nil {
		logger.Debug("DECODE failed", "trace", trace, "err", err)
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}
