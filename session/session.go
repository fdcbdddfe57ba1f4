package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/analyzer"
	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/settings"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultInstruction is the custom instruction a new session starts with.
const DefaultInstruction = "Extract and analyze all paths, endpoints, and parameters found in this HTTP traffic."

var ErrNotFound = errors.New("session not found")

// Session is one analysis workspace: captured traffic plus the analyst's
// instruction and inclusion choices.
type Session struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	RequestText       string    `json:"requestText"`
	ResponseText      string    `json:"responseText"`
	CustomInstruction string    `json:"customInstruction"`
	IncludeRequest    bool      `json:"includeRequest"`
	IncludeResponse   bool      `json:"includeResponse"`
	LastJobID         string    `json:"lastJobId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Fields is a partial update. Nil fields are left unchanged.
type Fields struct {
	Title             *string `json:"title"`
	RequestText       *string `json:"requestText"`
	ResponseText      *string `json:"responseText"`
	CustomInstruction *string `json:"customInstruction"`
	IncludeRequest    *bool   `json:"includeRequest"`
	IncludeResponse   *bool   `json:"includeResponse"`
}

func (f Fields) apply(s *Session) {
	if f.Title != nil {
		s.Title = *f.Title
	}
	if f.RequestText != nil {
		s.RequestText = *f.RequestText
	}
	if f.ResponseText != nil {
		s.ResponseText = *f.ResponseText
	}
	if f.CustomInstruction != nil {
		s.CustomInstruction = *f.CustomInstruction
	}
	if f.IncludeRequest != nil {
		s.IncludeRequest = *f.IncludeRequest
	}
	if f.IncludeResponse != nil {
		s.IncludeResponse = *f.IncludeResponse
	}
}

// Submitter is the part of the orchestrator a session needs.
type Submitter interface {
	SubmitFor(sessionID string, req analyzer.AnalysisRequest, obs orchestrator.Observer) (string, error)
}

// Store holds sessions in memory. Sessions never own a job: destroying one
// leaves any job it started running.
type Store struct {
	submitter Submitter
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	created  int
}

func NewStore(submitter Submitter, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		submitter: submitter,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Create adds an empty session with default settings and returns its id.
func (s *Store) Create() string {
	return s.CreateWith(Fields{}).ID
}

// CreateWith adds a session with f applied over the defaults.
func (s *Store) CreateWith(f Fields) Session {
	now := time.Now().UTC()

	s.mu.Lock()
	s.created++
	sess := &Session{
		ID:                uuid.NewString(),
		Title:             fmt.Sprintf("Request %d", s.created),
		CustomInstruction: DefaultInstruction,
		IncludeRequest:    true,
		IncludeResponse:   true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	f.apply(sess)
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	out := *sess
	s.mu.Unlock()

	s.logger.Info("Session created",
		zap.String("session_id", out.ID),
		zap.String("title", out.Title),
		zap.Int("request_length", len(out.RequestText)),
		zap.Int("response_length", len(out.ResponseText)))
	return out
}

func (s *Store) Destroy(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Info("Session destroyed", zap.String("session_id", id))
	return nil
}

func (s *Store) Update(id string, f Fields) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	f.apply(sess)
	sess.UpdatedAt = time.Now().UTC()
	return *sess, nil
}

func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *sess, nil
}

// List returns the sessions in creation order.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.sessions[id])
	}
	return out
}

// BuildRequest combines the session with the shared settings. It returns
// a *analyzer.ValidationError when there is nothing to analyze.
func (s *Store) BuildRequest(id string, cfg settings.Settings) (analyzer.AnalysisRequest, error) {
	sess, err := s.Get(id)
	if err != nil {
		return analyzer.AnalysisRequest{}, err
	}

	req := analyzer.AnalysisRequest{
		RequestText:       sess.RequestText,
		ResponseText:      sess.ResponseText,
		IncludeRequest:    sess.IncludeRequest,
		IncludeResponse:   sess.IncludeResponse,
		CustomInstruction: sess.CustomInstruction,
		SystemInstruction: cfg.SystemPrompt,
		ModelName:         cfg.Model,
		ExecutablePath:    cfg.Path,
	}
	if err := req.Validate(); err != nil {
		return analyzer.AnalysisRequest{}, err
	}
	return req, nil
}

// Analyze submits the session for analysis and remembers the job id.
func (s *Store) Analyze(id string, cfg settings.Settings, obs orchestrator.Observer) (string, error) {
	req, err := s.BuildRequest(id, cfg)
	if err != nil {
		return "", err
	}

	jobID, err := s.submitter.SubmitFor(id, req, obs)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	// The session may have been destroyed while the job was being accepted.
	if sess, ok := s.sessions[id]; ok {
		sess.LastJobID = jobID
	}
	s.mu.Unlock()

	s.logger.Info("Session submitted for analysis",
		zap.String("session_id", id),
		zap.String("job_id", jobID),
		zap.String("model", req.ModelName))
	return jobID, nil
}
