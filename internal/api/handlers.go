package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/spoofsent/spoofsent/internal/audit"
	"github.com/spoofsent/spoofsent/internal/campaign"
	"github.com/spoofsent/spoofsent/internal/metrics"
	"github.com/spoofsent/spoofsent/internal/posture"
	"github.com/spoofsent/spoofsent/internal/store"
)

const version = "0.1.0"

// SendRequest is the request body for POST /api/v1/send. Either a stored
// draft is referenced by DraftID or the message fields are given inline.
type SendRequest struct {
	DraftID string `json:"draft_id,omitempty"`

	MailFrom     string   `json:"mail_from"`
	MailTo       string   `json:"mail_to"`
	MailEnvelope string   `json:"mail_envelope,omitempty"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	HTMLBodyPath string   `json:"html_body_path,omitempty"`
	Attachments  []string `json:"attachments,omitempty"`
	BCC          string   `json:"bcc,omitempty"`
	MailboxID    string   `json:"mailbox_id,omitempty"`
	SpoofDomain  string   `json:"spoof_domain,omitempty"`
}

// SendResponse is the response for POST /api/v1/send
type SendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DomainCheckRequest is the request body for POST /api/v1/domain-check
type DomainCheckRequest struct {
	Domain string `json:"domain"`
}

// LaunchResponse is the response for POST /api/v1/campaigns/{id}/launch
type LaunchResponse struct {
	RunID    string `json:"run_id"`
	Accepted int    `json:"accepted"`
}

// MailboxRequest is the request body for POST /api/v1/mailboxes
type MailboxRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	UseTLS   bool   `json:"use_tls"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  time.Since(s.startTime).String(),
	})
}

// handleDomainCheck handles POST /api/v1/domain-check
func (s *Server) handleDomainCheck(w http.ResponseWriter, r *http.Request) {
	var req DomainCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Domain == "" {
		s.sendError(w, http.StatusBadRequest, "domain is required")
		return
	}

	report, err := s.deps.Evaluator.Check(r.Context(), req.Domain)
	if err != nil {
		if errors.Is(err, posture.ErrInvalidDomain) {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.sendError(w, http.StatusInternalServerError, "Domain check failed")
		return
	}

	metrics.IncDomainCheck(report.Spoofable)
	s.sendJSON(w, http.StatusOK, report)
}

// handleSend handles POST /api/v1/send
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, err := s.resolveSendDraft(&req)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.deps.Sender.Send(r.Context(), draft)
	entry := audit.NewEntry(draft.MailFrom, draft.MailTo, draft.Subject, res.Success, res.Message)
	if err := s.deps.Log.Append(entry); err != nil {
		s.logger.Error("failed to append log entry", "error", err)
	}

	s.sendJSON(w, http.StatusOK, SendResponse{Success: res.Success, Message: res.Message})
}

func (s *Server) resolveSendDraft(req *SendRequest) (*store.Draft, error) {
	if req.DraftID != "" {
		draft, err := s.deps.Drafts.Get(req.DraftID)
		if err != nil {
			return nil, fmt.Errorf("draft %s not found", req.DraftID)
		}
		return draft, nil
	}

	if req.MailFrom == "" {
		return nil, errors.New("mail_from is required")
	}
	if req.MailTo == "" {
		return nil, errors.New("mail_to is required")
	}

	return &store.Draft{
		MailFrom:     req.MailFrom,
		MailTo:       req.MailTo,
		MailEnvelope: req.MailEnvelope,
		Subject:      req.Subject,
		Body:         req.Body,
		HTMLBodyPath: req.HTMLBodyPath,
		Attachments:  req.Attachments,
		BCC:          req.BCC,
		MailboxID:    req.MailboxID,
		SpoofDomain:  req.SpoofDomain,
	}, nil
}

// Draft handlers

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.Drafts.List()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to list drafts")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string][]string{"drafts": ids})
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var draft store.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if draft.MailFrom == "" || draft.MailTo == "" {
		s.sendError(w, http.StatusBadRequest, "mail_from and mail_to are required")
		return
	}
	if draft.ID == "" {
		draft.ID = newRecordID()
	}

	if err := s.deps.Drafts.Save(draft.ID, &draft); err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to save draft")
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"id": draft.ID})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.deps.Drafts.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "Draft not found")
		return
	}
	s.sendJSON(w, http.StatusOK, draft)
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Drafts.Delete(chi.URLParam(r, "id")); err != nil {
		s.sendError(w, http.StatusNotFound, "Draft not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Campaign handlers

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.Campaigns.List()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string][]string{"campaigns": ids})
}

func (s *Server) handleSaveCampaign(w http.ResponseWriter, r *http.Request) {
	var c store.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if c.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(c.DraftIDs) == 0 {
		s.sendError(w, http.StatusBadRequest, "draft_ids is required")
		return
	}
	if c.ID == "" {
		c.ID = newRecordID()
	}

	if err := s.deps.Campaigns.Save(c.ID, &c); err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to save campaign")
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"id": c.ID})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Campaigns.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Campaigns.Delete(chi.URLParam(r, "id")); err != nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLaunchCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Campaigns.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	run, err := s.deps.Scheduler.Launch(r.Context(), c)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to launch campaign")
		return
	}

	s.sendJSON(w, http.StatusAccepted, LaunchResponse{RunID: run.ID, Accepted: run.Accepted})
}

// Template handlers

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.Templates.List()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string][]string{"templates": ids})
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl store.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if tpl.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if tpl.ID == "" {
		tpl.ID = newRecordID()
	}
	tpl.CreatedAt = timestamp()
	tpl.UpdatedAt = tpl.CreatedAt

	if err := s.deps.Templates.Save(tpl.ID, &tpl); err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to save template")
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"id": tpl.ID})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.deps.Templates.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}
	s.sendJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.deps.Templates.Get(id)
	if err != nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	var tpl store.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tpl.ID = id
	tpl.CreatedAt = existing.CreatedAt
	tpl.UpdatedAt = timestamp()

	if err := s.deps.Templates.Save(id, &tpl); err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Templates.Delete(chi.URLParam(r, "id")); err != nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mailbox handlers

func (s *Server) handleListMailboxes(w http.ResponseWriter, r *http.Request) {
	mailboxes := s.deps.Mailboxes.List()
	for i := range mailboxes {
		mailboxes[i].Secret = "" // never serve ciphertext
	}
	s.sendJSON(w, http.StatusOK, map[string][]store.Mailbox{"mailboxes": mailboxes})
}

func (s *Server) handleAddMailbox(w http.ResponseWriter, r *http.Request) {
	var req MailboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" || req.Host == "" || req.Port == 0 {
		s.sendError(w, http.StatusBadRequest, "username, password, host and port are required")
		return
	}

	secret, err := s.deps.Vault.Encrypt(req.Password)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to encrypt credentials")
		return
	}

	mb := store.Mailbox{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Username:  req.Username,
		Secret:    secret,
		Host:      req.Host,
		Port:      req.Port,
		UseTLS:    req.UseTLS,
		CreatedAt: time.Now().UTC(),
	}
	if mb.Name == "" {
		mb.Name = mb.Username
	}

	if err := s.deps.Mailboxes.Add(mb); err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to save mailbox")
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"id": mb.ID})
}

func (s *Server) handleDeleteMailbox(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Mailboxes.Delete(chi.URLParam(r, "id")); err != nil {
		s.sendError(w, http.StatusNotFound, "Mailbox not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Log and run handlers

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string][]audit.Entry{"log": s.deps.Log.Entries()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.deps.Journal.List()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string][]campaign.Run{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Journal.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "Run not found")
		return
	}
	s.sendJSON(w, http.StatusOK, run)
}

// sendJSON writes a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// newRecordID generates a time-derived record identifier, matching the
// millisecond ids of previously stored data.
func newRecordID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
