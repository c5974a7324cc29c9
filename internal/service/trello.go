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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

const trelloBaseURL = "https://api.trello.com/1"

// TrelloService is the authenticated client for the board REST API plus
// the full-board sweep that refreshes the mirror store.
type TrelloService struct {
	Repo    SyncRepository
	APIKey  string
	Token   string
	BoardID string
	BaseURL string
	Client  *http.Client
}

func NewTrelloService(repo SyncRepository, apiKey, token, boardID string) *TrelloService {
	return &TrelloService{
		Repo:    repo,
		APIKey:  apiKey,
		Token:   token,
		BoardID: boardID,
		BaseURL: trelloBaseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// doRequest performs one call against the Trello API. Authentication goes
// through key/token query parameters, Trello style.
func (s *TrelloService) doRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", s.APIKey)
	query.Set("token", s.Token)

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path+"?"+query.Encode(), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, &RemoteAPIError{API: "trello", Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}

func (s *TrelloService) GetLists(ctx context.Context) ([]model.TrelloList, error) {
	b, err := s.doRequest(ctx, http.MethodGet, "/boards/"+s.BoardID+"/lists", nil, nil)
	if err != nil {
		return nil, err
	}
	var lists []model.TrelloList
	if err := json.Unmarshal(b, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

func (s *TrelloService) GetCustomFields(ctx context.Context) ([]model.TrelloCustomField, error) {
	b, err := s.doRequest(ctx, http.MethodGet, "/boards/"+s.BoardID+"/customFields", nil, nil)
	if err != nil {
		return nil, err
	}
	var fields []model.TrelloCustomField
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *TrelloService) GetCards(ctx context.Context) ([]model.TrelloCard, error) {
	q := url.Values{"customFieldItems": {"true"}}
	b, err := s.doRequest(ctx, http.MethodGet, "/boards/"+s.BoardID+"/cards", q, nil)
	if err != nil {
		return nil, err
	}
	var cards []model.TrelloCard
	if err := json.Unmarshal(b, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *TrelloService) GetCard(ctx context.Context, cardID string) (*model.TrelloCard, error) {
	q := url.Values{"customFieldItems": {"true"}}
	b, err := s.doRequest(ctx, http.MethodGet, "/cards/"+cardID, q, nil)
	if err != nil {
		return nil, err
	}
	var card model.TrelloCard
	if err := json.Unmarshal(b, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

type createCardRequest struct {
	Name   string `json:"name"`
	Desc   string `json:"desc"`
	IDList string `json:"idList"`
	Pos    string `json:"pos"`
}

func (s *TrelloService) CreateCard(ctx context.Context, name, desc, listID string) (*model.TrelloCard, error) {
	b, err := s.doRequest(ctx, http.MethodPost, "/cards", nil, createCardRequest{
		Name:   name,
		Desc:   desc,
		IDList: listID,
		Pos:    "top",
	})
	if err != nil {
		return nil, err
	}
	var card model.TrelloCard
	if err := json.Unmarshal(b, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// CardChanges carries the fields UpdateCard may patch. Empty fields are
// left untouched on the remote card.
type CardChanges struct {
	Name   string
	Desc   string
	IDList string
}

func (s *TrelloService) UpdateCard(ctx context.Context, cardID string, changes CardChanges) error {
	body := map[string]string{}
	if changes.Name != "" {
		body["name"] = changes.Name
	}
	if changes.Desc != "" {
		body["desc"] = changes.Desc
	}
	if changes.IDList != "" {
		body["idList"] = changes.IDList
	}
	if len(body) == 0 {
		return nil
	}
	_, err := s.doRequest(ctx, http.MethodPut, "/cards/"+cardID, nil, body)
	return err
}

// SetCustomFieldItem writes one custom field value on a card. Dropdown
// fields take an option id, everything else a typed value.
func (s *TrelloService) SetCustomFieldItem(ctx context.Context, cardID, fieldID string, value *model.TrelloCustomFieldValue, optionID string) error {
	body := map[string]interface{}{}
	if optionID != "" {
		body["idValue"] = optionID
	} else if value != nil {
		body["value"] = value
	}
	_, err := s.doRequest(ctx, http.MethodPut, "/cards/"+cardID+"/customField/"+fieldID+"/item", nil, body)
	return err
}

// ExtractedFields are the structured values pulled out of a card's custom
// field items so the pátio views and the reconciler do not have to parse
// the card title.
type ExtractedFields struct {
	Placa              string
	Modelo             string
	ResponsavelTecnico string
	ValorAprovado      string
	PrevisaoEntrega    string
	All                map[string]string
}

func extractCustomFields(card *model.TrelloCard, fieldsByID map[string]model.TrelloCustomField) ExtractedFields {
	out := ExtractedFields{All: map[string]string{}}
	for _, item := range card.CustomFieldItems {
		field, ok := fieldsByID[item.IDCustomField]
		if !ok {
			continue
		}

		var value string
		if item.IDValue != "" {
			for _, opt := range field.Options {
				if opt.ID == item.IDValue {
					value = opt.Value.Text
					break
				}
			}
		} else if item.Value != nil {
			switch {
			case item.Value.Text != "":
				value = item.Value.Text
			case item.Value.Date != "":
				value = item.Value.Date
			case item.Value.Number != "":
				value = item.Value.Number
			}
		}
		if value == "" {
			continue
		}
		out.All[field.Name] = value

		switch field.Name {
		case "Placa":
			out.Placa = value
		case "Modelo":
			out.Modelo = value
		case "Responsável Técnico":
			out.ResponsavelTecnico = value
		case "Valor Aprovado":
			out.ValorAprovado = value
		case "Previsão Entrega":
			out.PrevisaoEntrega = value
		}
	}
	return out
}

// SyncBoard is the on-demand full resync: lists, custom field definitions
// and every card are fetched and mirrored. Per-card failures are counted,
// not fatal; drift self-heals on the next sweep.
func (s *TrelloService) SyncBoard(ctx context.Context) (synced, failed int, err error) {
	lists, err := s.GetLists(ctx)
	if err != nil {
		return 0, 0, err
	}
	listNames := make(map[string]string, len(lists))
	for _, l := range lists {
		listNames[l.ID] = l.Name
		if upErr := s.Repo.UpsertList(ctx, s.BoardID, &l); upErr != nil {
			log.WithFields(log.Fields{"list": l.ID, "error": upErr}).Error("[trello] failed to mirror list")
		}
	}

	fields, err := s.GetCustomFields(ctx)
	if err != nil {
		return 0, 0, err
	}
	fieldsByID := make(map[string]model.TrelloCustomField, len(fields))
	for _, f := range fields {
		fieldsByID[f.ID] = f
		if upErr := s.Repo.UpsertCustomField(ctx, s.BoardID, &f); upErr != nil {
			log.WithFields(log.Fields{"field": f.ID, "error": upErr}).Error("[trello] failed to mirror custom field")
		}
	}

	cards, err := s.GetCards(ctx)
	if err != nil {
		return 0, 0, err
	}
	for i := range cards {
		if err := s.mirrorCard(ctx, &cards[i], listNames, fieldsByID, nil); err != nil {
			log.WithFields(log.Fields{"card": cards[i].ID, "error": err}).Error("[trello] failed to mirror card")
			failed++
			continue
		}
		synced++
	}

	log.WithFields(log.Fields{"synced": synced, "failed": failed}).Info("[trello] board sweep finished")
	return synced, failed, nil
}

// MirrorCard refreshes the local copy of one card, optionally stamping the
// lead it belongs to.
func (s *TrelloService) MirrorCard(ctx context.Context, card *model.TrelloCard, leadID *int64) error {
	lists, err := s.GetLists(ctx)
	if err != nil {
		return err
	}
	listNames := make(map[string]string, len(lists))
	for _, l := range lists {
		listNames[l.ID] = l.Name
	}
	fields, err := s.GetCustomFields(ctx)
	if err != nil {
		return err
	}
	fieldsByID := make(map[string]model.TrelloCustomField, len(fields))
	for _, f := range fields {
		fieldsByID[f.ID] = f
	}
	return s.mirrorCard(ctx, card, listNames, fieldsByID, leadID)
}

func (s *TrelloService) mirrorCard(ctx context.Context, card *model.TrelloCard, listNames map[string]string, fieldsByID map[string]model.TrelloCustomField, leadID *int64) error {
	extracted := extractCustomFields(card, fieldsByID)

	labels, err := json.Marshal(card.Labels)
	if err != nil {
		return err
	}
	customFields, err := json.Marshal(extracted.All)
	if err != nil {
		return err
	}

	return s.Repo.UpsertCard(ctx, &model.MirrorCard{
		ID:                 card.ID,
		Name:               card.Name,
		Description:        card.Desc,
		IDList:             card.IDList,
		ListName:           listNames[card.IDList],
		Labels:             labels,
		CustomFields:       customFields,
		Placa:              extracted.Placa,
		Modelo:             extracted.Modelo,
		ResponsavelTecnico: extracted.ResponsavelTecnico,
		ValorAprovado:      extracted.ValorAprovado,
		PrevisaoEntrega:    extracted.PrevisaoEntrega,
		KommoLeadID:        leadID,
		DateLastActivity:   card.DateLastActivity,
	})
}

// CreateWebhook registers this server as a webhook target on the board.
func (s *TrelloService) CreateWebhook(ctx context.Context, callbackURL, description string) error {
	_, err := s.doRequest(ctx, http.MethodPost, "/webhooks", nil, map[string]string{
		"callbackURL": callbackURL,
		"idModel":     s.BoardID,
		"description": description,
	})
	if err != nil {
		return fmt.Errorf("create trello webhook: %w", err)
	}
	return nil
}
