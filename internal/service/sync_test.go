package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

// syncHarness wires a SyncService against fake Trello, Kommo and Telegram
// endpoints and counts what the reconciler sends where.
type syncHarness struct {
	repo *memRepo
	svc  *SyncService

	cardCreates    int
	createdName    string
	cardUpdates    int
	entryDateSets  int
	leadPatches    []string
	patchedLeadIDs []string
	leadNotes      []string
	telegramTexts  []string

	findLeadBody   string
	findLeadStatus int
	patchStatus    int
}

func newSyncHarness(t *testing.T) *syncHarness {
	t.Helper()
	h := &syncHarness{
		repo:           newMemRepo(),
		findLeadStatus: http.StatusNoContent,
		patchStatus:    http.StatusOK,
	}

	trelloMux := http.NewServeMux()
	trelloMux.HandleFunc("POST /cards", func(w http.ResponseWriter, r *http.Request) {
		h.cardCreates++
		var req createCardRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		h.createdName = req.Name
		w.Write([]byte(`{"id":"card-1","name":"` + req.Name + `","idList":"` + req.IDList + `","url":"https://trello.com/c/card-1"}`))
	})
	trelloMux.HandleFunc("PUT /cards/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.cardUpdates++
		w.Write([]byte(`{}`))
	})
	trelloMux.HandleFunc("PUT /cards/{id}/customField/{field}/item", func(w http.ResponseWriter, r *http.Request) {
		h.entryDateSets++
		w.Write([]byte(`{}`))
	})
	trelloMux.HandleFunc("GET /boards/board1/lists", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"l-agendados","name":"🟢 AGENDAMENTO CONFIRMADO","pos":1}]`))
	})
	trelloMux.HandleFunc("GET /boards/board1/customFields", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	trelloSrv := httptest.NewServer(trelloMux)
	t.Cleanup(trelloSrv.Close)

	kommoMux := http.NewServeMux()
	kommoMux.HandleFunc("PATCH /api/v4/leads/{id}", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		h.leadPatches = append(h.leadPatches, string(b))
		h.patchedLeadIDs = append(h.patchedLeadIDs, r.PathValue("id"))
		if h.patchStatus >= 400 {
			w.WriteHeader(h.patchStatus)
			return
		}
		w.Write([]byte(`{}`))
	})
	kommoMux.HandleFunc("POST /api/v4/leads/{id}/notes", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		h.leadNotes = append(h.leadNotes, string(b))
		w.Write([]byte(`{}`))
	})
	kommoMux.HandleFunc("GET /api/v4/leads", func(w http.ResponseWriter, r *http.Request) {
		if h.findLeadStatus == http.StatusNoContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(h.findLeadBody))
	})
	kommoSrv := httptest.NewServer(kommoMux)
	t.Cleanup(kommoSrv.Close)

	tgMux := http.NewServeMux()
	tgMux.HandleFunc("POST /bottg-token/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		h.telegramTexts = append(h.telegramTexts, req["text"])
		w.Write([]byte(`{"ok":true}`))
	})
	tgSrv := httptest.NewServer(tgMux)
	t.Cleanup(tgSrv.Close)

	trello := NewTrelloService(h.repo, "k", "t", "board1")
	trello.BaseURL = trelloSrv.URL
	kommo := NewKommoService(h.repo, kommoSrv.URL, "access", "refresh", "cid", "secret", "https://x")
	tg := NewTelegramService("tg-token", "chat-1")
	tg.BaseURL = tgSrv.URL

	h.svc = &SyncService{
		Repo:             h.repo,
		Trello:           trello,
		Kommo:            kommo,
		Notifier:         tg,
		StatusMap:        DefaultStatusMap(),
		FieldIDs:         LeadFieldIDs{Plate: 966001, Name: 966003, Date: 966023},
		PipelineID:       12704980,
		StatusConfirmed:  98072196,
		StatusDelivered:  98067596,
		ScheduledListID:  "l-agendados",
		EntryDateFieldID: "fld-entry",
	}
	return h
}

func confirmedLead(id int64) *model.KommoLead {
	return &model.KommoLead{
		ID:       id,
		Name:     "João Silva",
		StatusID: 98072196,
		CustomFields: []model.KommoCustomFieldValue{
			{FieldID: 966001, Values: []model.KommoFieldValue{{Value: "ABC1234"}}},
			{FieldID: 966003, Values: []model.KommoFieldValue{{Value: "João"}}},
			{FieldID: 966023, Values: []model.KommoFieldValue{{Value: "2026-01-13"}}},
		},
	}
}

func TestHandleLeadEventCreatesCardAndLink(t *testing.T) {
	h := newSyncHarness(t)

	created, err := h.svc.HandleLeadEvent(context.Background(), confirmedLead(501))
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, 1, h.cardCreates)
	assert.Equal(t, "2026-01-13 - João - ABC1234", h.createdName)
	assert.Equal(t, 1, h.entryDateSets)

	link, err := h.repo.FindLinkByLeadID(context.Background(), 501)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "card-1", link.CardID)
	assert.Equal(t, model.SyncStatusSynced, link.SyncStatus)

	mirror, err := h.repo.GetCard(context.Background(), "card-1")
	require.NoError(t, err)
	require.NotNil(t, mirror)
	require.NotNil(t, mirror.KommoLeadID)
	assert.Equal(t, int64(501), *mirror.KommoLeadID)

	require.Len(t, h.telegramTexts, 1)
	assert.Contains(t, h.telegramTexts[0], "KOMMO → TRELLO")
	assert.Contains(t, h.telegramTexts[0], "ABC1234")
}

func TestHandleLeadEventRedeliveryDoesNotDuplicate(t *testing.T) {
	h := newSyncHarness(t)

	_, err := h.svc.HandleLeadEvent(context.Background(), confirmedLead(501))
	require.NoError(t, err)

	created, err := h.svc.HandleLeadEvent(context.Background(), confirmedLead(501))
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, 1, h.cardCreates, "redelivery must not create a second card")
	assert.Equal(t, 1, h.cardUpdates, "redelivery refreshes the card in place")
}

func TestHandleLeadEventSkipsNonConfirmedStatus(t *testing.T) {
	h := newSyncHarness(t)

	lead := confirmedLead(502)
	lead.StatusID = 98064300

	created, err := h.svc.HandleLeadEvent(context.Background(), lead)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, h.cardCreates)
	assert.Empty(t, h.telegramTexts)
}

func TestHandleCardMoveDeliveredCompletesLink(t *testing.T) {
	h := newSyncHarness(t)
	require.NoError(t, h.repo.UpsertLink(context.Background(), &model.SyncLink{
		LeadID: 501, CardID: "c1", SyncStatus: model.SyncStatusSynced,
	}))

	err := h.svc.HandleCardMove(context.Background(), &CardMoveEvent{
		CardID:         "c1",
		CardName:       "13/01 - João - ABC1234",
		ListBeforeName: "Qualidade",
		ListAfterName:  "🙏🏻Entregue",
	})
	require.NoError(t, err)

	require.Len(t, h.leadPatches, 1)
	assert.Equal(t, "501", h.patchedLeadIDs[0])
	assert.Contains(t, h.leadPatches[0], `"status_id":98067596`)
	assert.Contains(t, h.leadPatches[0], `"pipeline_id":12704980`)

	link, err := h.repo.FindLinkByLeadID(context.Background(), 501)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, model.SyncStatusCompleted, link.SyncStatus)

	require.Len(t, h.repo.transitions, 1)
	assert.Equal(t, "Qualidade", h.repo.transitions[0].FromList)
	assert.Equal(t, "🙏🏻Entregue", h.repo.transitions[0].ToList)

	require.Len(t, h.leadNotes, 1, "delivery leaves a closing note on the lead")
	assert.Contains(t, h.leadNotes[0], "Veículo entregue")

	require.Len(t, h.telegramTexts, 1)
	assert.Contains(t, h.telegramTexts[0], "TRELLO → KOMMO")
}

func TestHandleCardMoveUnmappedListIsNoOp(t *testing.T) {
	h := newSyncHarness(t)

	err := h.svc.HandleCardMove(context.Background(), &CardMoveEvent{
		CardID:        "c1",
		CardName:      "13/01 - João - ABC1234",
		ListAfterName: "Lista Aleatória",
	})
	require.NoError(t, err)
	assert.Empty(t, h.leadPatches)
	assert.Empty(t, h.repo.transitions)
}

func TestHandleCardMoveLazyLinkDiscovery(t *testing.T) {
	h := newSyncHarness(t)
	h.findLeadStatus = http.StatusOK
	h.findLeadBody = `{"_embedded":{"leads":[{"id":777,"name":"João"}]}}`

	err := h.svc.HandleCardMove(context.Background(), &CardMoveEvent{
		CardID:        "c-unlinked",
		CardName:      "13/01 - João - ABC1234",
		ListAfterName: "Diagnóstico",
	})
	require.NoError(t, err)

	require.Len(t, h.patchedLeadIDs, 1)
	assert.Equal(t, "777", h.patchedLeadIDs[0])
	assert.Empty(t, h.leadNotes, "only deliveries are annotated")

	link, err := h.repo.FindLinkByCardID(context.Background(), "c-unlinked")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, int64(777), link.LeadID)
	assert.Equal(t, model.SyncStatusSynced, link.SyncStatus)
}

func TestHandleCardMovePrefersMirroredPlate(t *testing.T) {
	h := newSyncHarness(t)
	h.findLeadStatus = http.StatusOK
	h.findLeadBody = `{"_embedded":{"leads":[{"id":888}]}}`
	require.NoError(t, h.repo.UpsertCard(context.Background(), &model.MirrorCard{
		ID: "c-mirrored", Name: "título editado", Placa: "XYZ9876",
	}))

	// The title alone has too few segments; only the mirrored plate works.
	err := h.svc.HandleCardMove(context.Background(), &CardMoveEvent{
		CardID:        "c-mirrored",
		CardName:      "título editado",
		ListAfterName: "Orçamento",
	})
	require.NoError(t, err)
	require.Len(t, h.patchedLeadIDs, 1)
	assert.Equal(t, "888", h.patchedLeadIDs[0])
}

func TestHandleCardMoveNoLeadForPlateIsNoOp(t *testing.T) {
	h := newSyncHarness(t)
	// 204 from the filter endpoint: nothing matches the plate.

	err := h.svc.HandleCardMove(context.Background(), &CardMoveEvent{
		CardID:        "c-orphan",
		CardName:      "13/01 - João - ZZZ0000",
		ListAfterName: "Diagnóstico",
	})
	require.NoError(t, err)
	assert.Empty(t, h.leadPatches)

	link, err := h.repo.FindLinkByCardID(context.Background(), "c-orphan")
	require.NoError(t, err)
	assert.Nil(t, link)
}

func TestHandleCardMoveKommoFailureMarksLinkError(t *testing.T) {
	h := newSyncHarness(t)
	h.patchStatus = http.StatusInternalServerError
	require.NoError(t, h.repo.UpsertLink(context.Background(), &model.SyncLink{
		LeadID: 501, CardID: "c1", SyncStatus: model.SyncStatusSynced,
	}))

	err := h.svc.HandleCardMove(context.Background(), &CardMoveEvent{
		CardID:        "c1",
		CardName:      "13/01 - João - ABC1234",
		ListAfterName: "Diagnóstico",
	})
	require.Error(t, err)

	link, lErr := h.repo.FindLinkByLeadID(context.Background(), 501)
	require.NoError(t, lErr)
	require.NotNil(t, link)
	assert.Equal(t, model.SyncStatusError, link.SyncStatus)
	assert.True(t, strings.Contains(link.SyncError, "kommo"))
	assert.Empty(t, h.repo.transitions)
}
