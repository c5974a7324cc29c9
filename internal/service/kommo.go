package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

// KommoService is the authenticated client for the Kommo (ex-amoCRM) v4
// API. It owns credential refresh: a 401 triggers one refresh-token
// exchange and one retry; a second 401 is terminal.
type KommoService struct {
	Repo         SyncRepository
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Client       *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewKommoService(repo SyncRepository, baseURL, accessToken, refreshToken, clientID, clientSecret, redirectURI string) *KommoService {
	return &KommoService{
		Repo:         repo,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Client:       &http.Client{Timeout: 10 * time.Second},
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

func (s *KommoService) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// request performs one API call and transparently refreshes the access
// token on the first 401.
func (s *KommoService) request(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	b, status, err := s.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if refreshErr := s.refreshAccessToken(ctx); refreshErr != nil {
			return nil, &AuthError{API: "kommo", Err: refreshErr}
		}
		b, status, err = s.do(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, &AuthError{API: "kommo", Err: fmt.Errorf("credential rejected after refresh")}
		}
	}
	if status >= 400 {
		return nil, &RemoteAPIError{API: "kommo", Status: status, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}

func (s *KommoService) do(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token())

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return b, resp.StatusCode, nil
}

// refreshAccessToken exchanges the refresh token for a new pair and
// persists it. Persistence failure is logged, not fatal: the in-flight
// request still completes with the in-memory tokens.
func (s *KommoService) refreshAccessToken(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.mu.Unlock()

	payload, err := json.Marshal(map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"redirect_uri":  s.RedirectURI,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/oauth2/access_token", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("token refresh failed: %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var tokens model.KommoTokenResponse
	if err := json.Unmarshal(b, &tokens); err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.mu.Unlock()

	if s.Repo != nil {
		if err := s.Repo.SaveKommoTokens(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("[kommo] failed to persist refreshed tokens")
		}
	}

	log.Info("[kommo] access token refreshed")
	return nil
}

type kommoLeadsEnvelope struct {
	Embedded struct {
		Leads []model.KommoLead `json:"leads"`
	} `json:"_embedded"`
}

type kommoContactsEnvelope struct {
	Embedded struct {
		Contacts []model.KommoContact `json:"contacts"`
	} `json:"_embedded"`
}

func (s *KommoService) GetLead(ctx context.Context, leadID int64) (*model.KommoLead, error) {
	b, err := s.request(ctx, http.MethodGet, fmt.Sprintf("/api/v4/leads/%d", leadID), nil)
	if err != nil {
		return nil, err
	}
	var lead model.KommoLead
	if err := json.Unmarshal(b, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// UpdateLeadStatus moves a lead to another pipeline status.
func (s *KommoService) UpdateLeadStatus(ctx context.Context, leadID, statusID, pipelineID int64) error {
	body := map[string]int64{
		"status_id":   statusID,
		"pipeline_id": pipelineID,
	}
	_, err := s.request(ctx, http.MethodPatch, fmt.Sprintf("/api/v4/leads/%d", leadID), body)
	return err
}

// FindLeadByCustomField looks a lead up by an exact custom field value
// (used with the plate field). Returns 0 when nothing matches.
func (s *KommoService) FindLeadByCustomField(ctx context.Context, fieldID int64, value string) (int64, error) {
	path := fmt.Sprintf("/api/v4/leads?filter[custom_fields_values][%d][]=%s", fieldID, url.QueryEscape(value))
	b, err := s.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	// Kommo answers 204 with an empty body when the filter matches nothing.
	if len(bytes.TrimSpace(b)) == 0 {
		return 0, nil
	}
	var env kommoLeadsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return 0, err
	}
	if len(env.Embedded.Leads) == 0 {
		return 0, nil
	}
	return env.Embedded.Leads[0].ID, nil
}

func (s *KommoService) CreateLead(ctx context.Context, lead *model.KommoLead) (*model.KommoLead, error) {
	b, err := s.request(ctx, http.MethodPost, "/api/v4/leads", []*model.KommoLead{lead})
	if err != nil {
		return nil, err
	}
	var env kommoLeadsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.Leads) == 0 {
		return nil, fmt.Errorf("kommo returned no lead")
	}
	return &env.Embedded.Leads[0], nil
}

func (s *KommoService) CreateContact(ctx context.Context, contact *model.KommoContact) (*model.KommoContact, error) {
	b, err := s.request(ctx, http.MethodPost, "/api/v4/contacts", []*model.KommoContact{contact})
	if err != nil {
		return nil, err
	}
	var env kommoContactsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.Contacts) == 0 {
		return nil, fmt.Errorf("kommo returned no contact")
	}
	return &env.Embedded.Contacts[0], nil
}

// FindContactByPhone looks a contact up through the full-text query
// endpoint. Returns nil when nothing matches.
func (s *KommoService) FindContactByPhone(ctx context.Context, phone string) (*model.KommoContact, error) {
	b, err := s.request(ctx, http.MethodGet, "/api/v4/contacts?query="+url.QueryEscape(phone), nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	var env kommoContactsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.Contacts) == 0 {
		return nil, nil
	}
	return &env.Embedded.Contacts[0], nil
}

// AddNote attaches a text note to a lead or contact.
func (s *KommoService) AddNote(ctx context.Context, note *model.KommoNote) error {
	path := fmt.Sprintf("/api/v4/%s/%d/notes", note.EntityType, note.EntityID)
	_, err := s.request(ctx, http.MethodPost, path, []*model.KommoNote{note})
	return err
}
