package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/classify"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/storage"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
)

// handleChat runs one user turn and streams canonical events as SSE. Errors
// before the stream opens surface as JSON with a mapped status; once
// streaming has begun every failure travels as a terminal error event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidationFailed("malformed request body: "+err.Error()))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, domain.ErrValidationFailed("messages must not be empty"))
		return
	}
	req.UserAgent = r.UserAgent()

	var intent classify.Intent
	if req.AutoRoute || req.Model == "" {
		result := s.deps.Classifier.Classify(req.Messages)
		intent = result.Intent
		AddLogField(ctx, "intent", string(result.Intent))
		AddLogField(ctx, "classify_confidence", strconv.FormatFloat(result.Confidence, 'f', 2, 64))
		if req.Model == "" || result.Confidence >= s.deps.ConfidenceThreshold {
			req.Provider = result.SuggestedProvider
			req.Model = result.SuggestedModel
		}
	}
	AddLogField(ctx, "model", req.Model)
	AddLogField(ctx, "provider", req.Provider)

	// Resolution problems are pre-stream failures and get real status codes.
	adapter, err := s.deps.Registry.ResolveRequest(&req)
	if err != nil {
		AddError(ctx, err)
		writeError(w, err)
		return
	}
	if !adapter.IsConfigured() {
		err := domain.ErrNotConfigured(adapter.Name())
		AddError(ctx, err)
		writeError(w, err)
		return
	}

	// Default the tool surface to the built-in registry when the caller
	// supplied none and did not opt out.
	if len(req.Tools) == 0 && req.ToolChoice != domain.ToolChoiceNone {
		req.Tools = s.deps.Tools.Definitions()
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	sink := make(chan stream.Event, 16)
	runErr := make(chan error, 1)
	go func() {
		_, err := s.deps.Loop.Run(ctx, &req, sink)
		close(sink)
		runErr <- err
	}()

	var usage domain.Usage
	var errorKind string
	for ev := range sink {
		if ev.Type == stream.EventDone {
			usage = ev.Done.Usage
		}
		if ev.Type == stream.EventError {
			errorKind = string(ev.Error.Kind)
		}
		if err := sw.Send(ev); err != nil {
			// Client went away; drain the producer and stop.
			for range sink {
			}
			<-runErr
			return
		}
	}
	if err := <-runErr; err != nil {
		AddError(ctx, err)
		ge := domain.ClassifyError(err)
		errorKind = string(ge.Kind)
		_ = sw.Send(stream.NewError(err))
	}
	sw.Terminate()

	s.recordInteraction(&req, intent, usage, errorKind, time.Since(start))
}

// recordInteraction logs the turn fire-and-forget; storage failures never
// affect the response.
func (s *Server) recordInteraction(req *domain.Request, intent classify.Intent, usage domain.Usage, errorKind string, elapsed time.Duration) {
	if s.deps.Log == nil {
		return
	}
	in := &storage.Interaction{
		ConversationID: req.ConversationID,
		Provider:       req.Provider,
		Model:          req.Model,
		Intent:         string(intent),
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
		DurationMs:     elapsed.Milliseconds(),
		ErrorKind:      errorKind,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Log.Record(ctx, in); err != nil {
			s.logger.Warn("failed to record interaction", "error", err)
		}
	}()
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.ErrValidationFailed("malformed request body: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Classifier.Classify(body.Messages))
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": s.deps.Registry.Models(),
	})
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Log == nil {
		writeJSON(w, http.StatusOK, map[string]any{"interactions": []storage.Interaction{}})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	interactions, err := s.deps.Log.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if interactions == nil {
		interactions = []storage.Interaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": interactions})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto the canonical taxonomy and its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	ge := domain.ClassifyError(err)
	status := ge.HTTPStatus()

	body := map[string]any{
		"error": map[string]any{
			"kind":    string(ge.Kind),
			"message": ge.Message,
		},
	}
	if ge.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(ge.RetryAfter.Seconds())))
	}
	writeJSON(w, status, body)
}
