package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/mqtt-journal/internal/publisher"
)

// subscriptionRequest is the body of POST /subscriptions.
type subscriptionRequest struct {
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
}

// publishRequest is the body of POST /publish. Exactly one of Payload
// (sent as-is) and JSON (validated and compacted) may be set.
type publishRequest struct {
	Topic   string          `json:"topic"`
	Payload *string         `json:"payload,omitempty"`
	JSON    json.RawMessage `json:"json,omitempty"`
	QoS     byte            `json:"qos"`
	Retain  bool            `json:"retain"`
}

// handleListSubscriptions returns the acknowledged topic filters.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"topics": s.deps.Session.SubscribedTopics(),
	})
}

// handleSubscribe adds a topic filter to the session.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.deps.Session.Subscribe(req.Topic, req.QoS); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// handleUnsubscribe removes the topic filter given in the topic query
// parameter. Unknown filters succeed.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if err := s.deps.Session.Unsubscribe(topic); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePublish publishes one message through the session.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var payload []byte
	switch {
	case req.Payload != nil && len(req.JSON) > 0:
		writeBadRequest(w, "payload and json are mutually exclusive")
		return
	case len(req.JSON) > 0:
		compact, err := publisher.Compact(req.JSON)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		payload = compact
	case req.Payload != nil:
		payload = []byte(*req.Payload)
	}

	if err := s.deps.Session.Publish(req.Topic, payload, req.QoS, req.Retain); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"topic": req.Topic,
		"bytes": len(payload),
	})
}
