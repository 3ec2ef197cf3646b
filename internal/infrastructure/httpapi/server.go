// Package httpapi exposes the four inbound command shapes and three
// outbound events of §6 over plain HTTP plus Server-Sent Events: the
// transport SPEC_FULL.md puts in front of the Agent Loop and the
// Research Orchestrator so a UI layer never touches either directly.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"browsercore/internal/application/port/input"
	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/agentrun"
	"browsercore/internal/usecase/agentloop"
)

// Server wires one Agent Loop and one Research Orchestrator — both of
// which satisfy input.AgentRunner — behind chi routes. abort is the
// single process-scoped cancellation flag AGENT_STOP sets; per §9's
// design note there is exactly one in flight at a time, so AGENT_STOP
// carries no conversationId of its own and simply stops whichever run
// is currently using it.
type Server struct {
	agent    input.AgentRunner
	research input.ResearchRunner
	abort    *agentrun.Handle
	storage  output.StoragePort
	logger   output.LoggerPort
	hub      *hub
}

func New(agent input.AgentRunner, research input.ResearchRunner, abort *agentrun.Handle, storage output.StoragePort, logger output.LoggerPort) *Server {
	return &Server{agent: agent, research: research, abort: abort, storage: storage, logger: logger, hub: newHub()}
}

// Routes mounts the command surface. The caller is expected to wrap it
// with whatever request-logging middleware (go-chi/httplog, in this
// system) and timeouts it wants at the cmd/ entrypoint.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/chat", s.handleChat)
	r.Post("/agent/run", s.handleAgentRun)
	r.Post("/research/run", s.handleResearchRun)
	r.Post("/agent/stop", s.handleAgentStop)
	r.Get("/events/{conversationId}", s.handleEvents)
	return r
}

type runRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversationId"`
}

type ackResponse struct {
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversationId"`
}

// handleChat runs the prompt through the single-tab Agent Loop, tool
// catalog included, and answers synchronously with its final answer
// rather than over SSE. There is no separate LLM-only chat path.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conversationID := orNewID(req.ConversationID)

	result, err := s.agent.Run(r.Context(), req.Prompt, nil)
	if err != nil && !agentloop.IsGracefulTermination(err) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": result.FinalAnswer, "conversationId": conversationID})
}

func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	s.handleAsyncRun(w, r, s.agent)
}

func (s *Server) handleResearchRun(w http.ResponseWriter, r *http.Request) {
	s.handleAsyncRun(w, r, s.research)
}

// handleAsyncRun implements the §6 response contract shared by AGENT_RUN
// and RESEARCH_RUN: acknowledge immediately, then drive the run in the
// background and publish agent_progress/agent_done/agent_error to the
// conversation's SSE subscribers as it goes.
func (s *Server) handleAsyncRun(w http.ResponseWriter, r *http.Request, runner input.AgentRunner) {
	var req runRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conversationID := orNewID(req.ConversationID)
	writeJSON(w, http.StatusAccepted, ackResponse{OK: true, ConversationID: conversationID})

	ctx := context.WithoutCancel(r.Context())
	go s.runAsync(ctx, runner, req.Prompt, conversationID)
}

func (s *Server) runAsync(ctx context.Context, runner input.AgentRunner, prompt, conversationID string) {
	progress := func(text string) {
		s.publish(conversationID, "agent_progress", map[string]string{"text": text, "conversationId": conversationID})
	}

	result, err := runner.Run(ctx, prompt, progress)
	if err != nil && !agentloop.IsGracefulTermination(err) {
		s.logger.Warn("run failed", "conversationId", conversationID, "error", err)
		s.publish(conversationID, "agent_error", map[string]string{"error": err.Error(), "conversationId": conversationID})
		return
	}

	s.saveConversation(ctx, conversationID, prompt, result.FinalAnswer)
	s.publish(conversationID, "agent_done", map[string]string{"conversationId": conversationID})
}

func (s *Server) saveConversation(ctx context.Context, conversationID, prompt, answer string) {
	if s.storage == nil {
		return
	}
	body, err := json.Marshal(map[string]string{"prompt": prompt, "answer": answer})
	if err != nil {
		return
	}
	if err := s.storage.SaveConversation(ctx, output.Conversation{ID: conversationID, Messages: body}); err != nil {
		s.logger.Warn("save conversation failed", "conversationId", conversationID, "error", err)
	}
}

// handleAgentStop sets the shared abort flag. It never blocks on the run
// actually noticing — the Agent Loop checks Aborted() at the top of each
// step and before each tool dispatch — so the request returns immediately
// per the §6 response contract.
func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	s.abort.Abort()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleEvents serves one conversation's agent_progress/agent_done/
// agent_error stream as SSE. A client that disconnects and reconnects
// just gets a fresh subscription; events published before it reconnected
// are not replayed, since a run emits at most a handful of them and a
// missed agent_done is self-evident from a stalled connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before the headers go out: once a client has the response
	// headers it may consider itself connected, so the subscription must
	// already exist or an event published immediately after could be lost.
	ch := s.hub.subscribe(conversationID)
	defer s.hub.unsubscribe(conversationID, ch)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
			flusher.Flush()
		}
	}
}

func (s *Server) publish(conversationID, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.hub.publish(conversationID, event{name: name, data: data})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
