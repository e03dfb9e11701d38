package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/rendezvous"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/workflows"
)

type createQuestionRequest struct {
	Question string `json:"question"`
	Wait     bool   `json:"wait"`
}

type questionResponse struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Status        string `json:"status"`
	Answer        string `json:"answer,omitempty"`
	FinalAnswer   string `json:"final_answer,omitempty"`
	Answered      bool   `json:"answered"`
	Rounds        int    `json:"rounds"`
	Error         string `json:"error,omitempty"`
	CheckpointSeq int64  `json:"checkpoint_seq"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type listQuestionsResponse struct {
	Questions []questionResponse `json:"questions"`
}

type trailNodeResponse struct {
	ID            string         `json:"id"`
	ParentID      string         `json:"parent_id,omitempty"`
	BranchPointID string         `json:"branch_point_id,omitempty"`
	Sender        string         `json:"sender"`
	Content       string         `json:"content"`
	Kind          string         `json:"kind,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Seq           int64          `json:"seq"`
	CreatedAt     string         `json:"created_at,omitempty"`
}

type listTrailResponse struct {
	Nodes []trailNodeResponse `json:"nodes"`
}

func toQuestionResponse(question store.Question) questionResponse {
	return questionResponse{
		ID:            question.ID,
		Question:      question.Question,
		Status:        question.Status,
		Answer:        question.Answer,
		FinalAnswer:   question.FinalAnswer,
		Answered:      question.Answered,
		Rounds:        question.Rounds,
		Error:         question.Error,
		CheckpointSeq: question.CheckpointSeq,
		CreatedAt:     question.CreatedAt,
		UpdatedAt:     question.UpdatedAt,
	}
}

func (s *Server) createQuestion(w http.ResponseWriter, r *http.Request) {
	req := createQuestionRequest{}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	text := strings.TrimSpace(req.Question)
	if text == "" {
		http.Error(w, "question required", http.StatusBadRequest)
		return
	}
	if s.workflows == nil {
		http.Error(w, "workflow client not configured", http.StatusServiceUnavailable)
		return
	}

	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	question := store.Question{
		ID:        id,
		Question:  text,
		Status:    store.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateQuestion(r.Context(), question); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token := ""
	if req.Wait {
		token = s.waits.Correlate()
		s.trackWait(id, token)
		defer s.untrackWait(id)
	}
	if err := s.workflows.StartQuestion(r.Context(), id, text, token); err != nil {
		if token != "" {
			s.waits.Forget(token)
		}
		s.logger.Error("start question workflow", zap.String("question_id", id), zap.Error(err))
		_ = s.recordEvent(r.Context(), store.QuestionEvent{
			QuestionID: id,
			Type:       events.TypeQuestionFailed,
			Source:     "control_plane",
			Payload:    map[string]any{"error": "workflow start failed: " + err.Error()},
		})
		http.Error(w, "workflow start failed", http.StatusBadGateway)
		return
	}

	if token == "" {
		writeJSONStatus(w, map[string]any{"question_id": id, "status": store.StatusQueued}, http.StatusAccepted)
		return
	}

	if _, err := s.waits.Await(r.Context(), token); err != nil {
		if errors.Is(err, rendezvous.ErrTimeout) {
			writeJSONStatus(w, map[string]any{"question_id": id, "status": store.StatusRunning}, http.StatusAccepted)
		}
		return
	}
	answered, err := s.store.GetQuestion(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if answered == nil {
		http.Error(w, "question deleted", http.StatusGone)
		return
	}
	writeJSONStatus(w, toQuestionResponse(*answered), http.StatusOK)
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.store.ListQuestions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := listQuestionsResponse{Questions: make([]questionResponse, 0, len(questions))}
	for _, question := range questions {
		response.Questions = append(response.Questions, toQuestionResponse(question))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// loadQuestion writes the error response itself and returns nil when the question cannot be served.
func (s *Server) loadQuestion(w http.ResponseWriter, r *http.Request) *store.Question {
	questionID := chi.URLParam(r, "id")
	if questionID == "" {
		http.Error(w, "question id required", http.StatusBadRequest)
		return nil
	}
	question, err := s.store.GetQuestion(r.Context(), questionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	if question == nil {
		http.Error(w, "question not found", http.StatusNotFound)
		return nil
	}
	return question
}

func (s *Server) getQuestion(w http.ResponseWriter, r *http.Request) {
	question := s.loadQuestion(w, r)
	if question == nil {
		return
	}
	writeJSONStatus(w, toQuestionResponse(*question), http.StatusOK)
}

func (s *Server) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	question := s.loadQuestion(w, r)
	if question == nil {
		return
	}
	if s.workflows != nil && !store.IsTerminal(question.Status) {
		if err := s.workflows.CancelQuestion(r.Context(), question.ID); err != nil {
			s.logger.Warn("cancel question before delete", zap.String("question_id", question.ID), zap.Error(err))
		}
	}
	if err := s.store.DeleteQuestion(r.Context(), question.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.releaseWait(question.ID, "question deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancelQuestion(w http.ResponseWriter, r *http.Request) {
	question := s.loadQuestion(w, r)
	if question == nil {
		return
	}
	if store.IsTerminal(question.Status) {
		http.Error(w, "question already "+question.Status, http.StatusConflict)
		return
	}
	if s.workflows != nil {
		if err := s.workflows.CancelQuestion(r.Context(), question.ID); err != nil {
			s.logger.Warn("cancel question workflow", zap.String("question_id", question.ID), zap.Error(err))
		}
	}
	if err := s.recordEvent(r.Context(), store.QuestionEvent{
		QuestionID: question.ID,
		Type:       events.TypeQuestionCancelled,
		Source:     "control_plane",
		Payload:    map[string]any{"reason": "user_requested"},
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.releaseWait(question.ID, "question cancelled")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) trackWait(questionID string, token string) {
	s.waitMu.Lock()
	s.waiting[questionID] = token
	s.waitMu.Unlock()
}

func (s *Server) untrackWait(questionID string) {
	s.waitMu.Lock()
	delete(s.waiting, questionID)
	s.waitMu.Unlock()
}

// releaseWait fails the request blocked on questionID, if any.
func (s *Server) releaseWait(questionID string, reason string) {
	s.waitMu.Lock()
	token, ok := s.waiting[questionID]
	s.waitMu.Unlock()
	if !ok {
		return
	}
	if err := s.waits.Post(token, reason, true); err != nil {
		s.logger.Debug("release waiter", zap.String("question_id", questionID), zap.Error(err))
	}
}

// postAnswer receives the worker's result, records it and releases any request waiting on its token.
func (s *Server) postAnswer(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")
	var callback workflows.AnswerCallback
	if err := json.NewDecoder(r.Body).Decode(&callback); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	failed := strings.TrimSpace(callback.Error) != ""
	event := store.QuestionEvent{
		QuestionID: questionID,
		Type:       events.TypeQuestionAnswered,
		Source:     "worker",
		Payload: map[string]any{
			"answer":       callback.Answer,
			"final_answer": callback.FinalAnswer,
			"answered":     callback.Answered,
			"rounds":       callback.Rounds,
		},
	}
	payload := callback.Answer
	if failed {
		event.Type = events.TypeQuestionFailed
		event.Payload = map[string]any{"error": callback.Error}
		payload = callback.Error
	}
	if err := s.recordEvent(r.Context(), event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if token := strings.TrimSpace(callback.Token); token != "" {
		if err := s.waits.Post(token, payload, failed); err != nil {
			s.logger.Debug("answer had no waiter", zap.String("question_id", questionID), zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) uploadTrail(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")
	var upload workflows.TrailUpload
	if err := json.NewDecoder(r.Body).Decode(&upload); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.store.AppendTrail(r.Context(), questionID, store.TrailFromNodes(questionID, upload.Nodes)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) listTrail(w http.ResponseWriter, r *http.Request) {
	question := s.loadQuestion(w, r)
	if question == nil {
		return
	}
	nodes, err := s.store.ListTrail(r.Context(), question.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := listTrailResponse{Nodes: make([]trailNodeResponse, 0, len(nodes))}
	for _, node := range nodes {
		response.Nodes = append(response.Nodes, trailNodeResponse{
			ID:            node.ID,
			ParentID:      node.ParentID,
			BranchPointID: node.BranchPointID,
			Sender:        node.Sender,
			Content:       node.Content,
			Kind:          node.Kind,
			Attributes:    node.Attributes,
			Seq:           node.Seq,
			CreatedAt:     node.CreatedAt,
		})
	}
	writeJSONStatus(w, response, http.StatusOK)
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	question := s.loadQuestion(w, r)
	if question == nil {
		return
	}
	stored, err := s.store.ListEvents(r.Context(), question.ID, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, store.BuildProgress(stored), http.StatusOK)
}

