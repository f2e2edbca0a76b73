package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/consensus"
	"github.com/SoraOracle/SoraOracle-sub003/internal/proofchain"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env, cfg.Server.AllowedOrigins),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *oracleEnv, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/research", handleResearch(env))
	r.Get("/sources", handleListSources(env))
	r.Get("/sources/{id}/reputation", handleSourceReputation(env))
	r.Post("/proofs/verify", handleVerifyProof(env))

	return r
}

func handleResearch(env *oracleEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question       string  `json:"question"`
			Budget         float64 `json:"budget,omitempty"`
			MinSources     int     `json:"min_sources,omitempty"`
			AllowDiscovery *bool   `json:"allow_discovery,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Question == "" {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}

		var opts []consensus.CallOption
		if req.Budget > 0 {
			opts = append(opts, consensus.WithBudget(req.Budget))
		}
		if req.MinSources > 0 {
			opts = append(opts, consensus.WithMinSources(req.MinSources))
		}
		if req.AllowDiscovery != nil {
			opts = append(opts, consensus.WithDiscovery(*req.AllowDiscovery))
		}

		result, err := env.Engine.ResearchQuestion(r.Context(), req.Question, opts...)
		if err != nil {
			status := http.StatusInternalServerError
			var insufficient *consensus.InsufficientSourcesError
			var noConsensus *consensus.NoConsensusError
			var classification *consensus.ClassificationFailedError
			switch {
			case errors.As(err, &insufficient):
				status = http.StatusUnprocessableEntity
			case errors.As(err, &noConsensus):
				status = http.StatusConflict
			case errors.As(err, &classification):
				status = http.StatusBadGateway
			}
			zap.L().Error("research request failed",
				zap.String("question", req.Question),
				zap.Error(err),
			)
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func handleListSources(env *oracleEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources := env.Catalog.All()
		if category := r.URL.Query().Get("category"); category != "" {
			sources = env.Catalog.FindByCategory(category)
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

func handleSourceReputation(env *oracleEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := env.Catalog.Get(id); !ok {
			writeError(w, http.StatusNotFound, "unknown source")
			return
		}
		writeJSON(w, http.StatusOK, env.Tracker.Get(id))
	}
}

func handleVerifyProof(env *oracleEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Hash    string `json:"hash"`
			Payload string `json:"payload,omitempty"` // base64; omit to verify the stored blob
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Hash == "" {
			writeError(w, http.StatusBadRequest, "hash is required")
			return
		}

		var payload []byte
		if req.Payload != "" {
			raw, err := base64.StdEncoding.DecodeString(req.Payload)
			if err != nil {
				writeError(w, http.StatusBadRequest, "payload is not valid base64")
				return
			}
			payload = raw
		} else {
			raw, ok := env.Chain.Get(r.Context(), req.Hash)
			if !ok {
				writeError(w, http.StatusNotFound, "no proof stored for hash")
				return
			}
			payload = raw
		}

		writeJSON(w, http.StatusOK, map[string]bool{
			"valid": proofchain.Hash(payload) == req.Hash,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
