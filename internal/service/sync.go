package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

// SyncService is the reconciler: it takes normalized change events from
// the webhook ingestors and propagates them across systems. It only ever
// acts cross-system (a lead event touches Trello, a card event touches
// Kommo), so webhooks can never echo back into a loop.
type SyncService struct {
	Repo     SyncRepository
	Trello   *TrelloService
	Kommo    *KommoService
	Notifier *TelegramService

	StatusMap StatusMap
	FieldIDs  LeadFieldIDs

	PipelineID       int64
	StatusConfirmed  int64
	StatusDelivered  int64
	ScheduledListID  string
	EntryDateFieldID string
}

// CardMoveEvent is the normalized form of a Trello "updateCard" webhook
// with a list change.
type CardMoveEvent struct {
	CardID         string
	CardName       string
	ListBeforeName string
	ListAfterName  string
}

// HandleLeadEvent propagates one lead change from Kommo to the board.
// Returns whether a card was created. Redelivery is safe: an existing
// SyncLink short-circuits into an in-place update.
func (s *SyncService) HandleLeadEvent(ctx context.Context, lead *model.KommoLead) (bool, error) {
	logger := log.WithFields(log.Fields{"lead": lead.ID, "status": lead.StatusID})

	if lead.StatusID != s.StatusConfirmed {
		logger.Debug("[sync] lead not in qualifying status, skipping")
		return false, nil
	}

	link, err := s.Repo.FindLinkByLeadID(ctx, lead.ID)
	if err != nil {
		return false, err
	}

	content := LeadCardContent(lead, s.FieldIDs)

	if link != nil {
		// synced -> synced: refresh card fields in place.
		if err := s.Trello.UpdateCard(ctx, link.CardID, CardChanges{Name: content.Name, Desc: content.Desc}); err != nil {
			return false, err
		}
		if err := s.Repo.UpsertLink(ctx, &model.SyncLink{
			LeadID:     lead.ID,
			CardID:     link.CardID,
			SyncStatus: model.SyncStatusSynced,
		}); err != nil {
			logger.WithField("error", err).Error("[sync] failed to touch sync link")
		}
		logger.WithField("card", link.CardID).Info("[sync] lead already linked, card updated")
		return false, nil
	}

	card, err := s.Trello.CreateCard(ctx, content.Name, content.Desc, s.ScheduledListID)
	if err != nil {
		// No link is written: the remote's webhook redelivery is the
		// retry path, and it must find a clean slate.
		return false, err
	}
	logger = logger.WithField("card", card.ID)

	if s.EntryDateFieldID != "" {
		if date := entryDateISO(content.Date); date != "" {
			err := s.Trello.SetCustomFieldItem(ctx, card.ID, s.EntryDateFieldID, &model.TrelloCustomFieldValue{Date: date}, "")
			if err != nil {
				logger.WithField("error", err).Warn("[sync] failed to set entry date custom field")
			}
		}
	}

	// Returning an error here would make the sender redeliver and create
	// a second card, so a failed link write is logged instead.
	if err := s.Repo.UpsertLink(ctx, &model.SyncLink{
		LeadID:     lead.ID,
		CardID:     card.ID,
		SyncStatus: model.SyncStatusSynced,
	}); err != nil {
		logger.WithField("error", err).Error("[sync] failed to persist sync link")
	}

	// Mirror writes are advisory, the board stays the source of truth.
	leadID := lead.ID
	if err := s.Trello.MirrorCard(ctx, card, &leadID); err != nil {
		logger.WithField("error", err).Warn("[sync] failed to mirror new card")
	}

	s.Notifier.NotifySync(ctx, &model.SyncNotification{
		Direction: model.DirectionKommoToTrello,
		Plate:     content.Plate,
		Name:      lead.Name,
		Date:      content.Date,
		CardURL:   card.URL,
		LeadID:    lead.ID,
	})

	logger.Info("[sync] card created for confirmed lead")
	return true, nil
}

// HandleCardMove propagates one board move back into the lead pipeline.
// Unmapped lists and unknown cards are no-ops by design: not every list
// transition is sync-worthy and not every card was created by this engine.
func (s *SyncService) HandleCardMove(ctx context.Context, ev *CardMoveEvent) error {
	logger := log.WithFields(log.Fields{"card": ev.CardID, "to": ev.ListAfterName})

	statusID, ok := s.StatusMap.StatusForList(ev.ListAfterName)
	if !ok {
		logger.Info("[sync] list not mapped, ignoring move")
		return nil
	}

	link, err := s.Repo.FindLinkByCardID(ctx, ev.CardID)
	if err != nil {
		return err
	}

	var leadID int64
	var plate string
	if link != nil {
		leadID = link.LeadID
		if mirror, mErr := s.Repo.GetCard(ctx, ev.CardID); mErr == nil && mirror != nil {
			plate = mirror.Placa
		}
		if plate == "" {
			plate, _ = PlateFromCardName(ev.CardName)
		}
	} else {
		// Lazy link discovery: find the lead through the plate. The
		// mirrored structured field wins over the title heuristic.
		plate = s.cardPlate(ctx, ev)
		if plate == "" {
			logger.Info("[sync] no plate on card, ignoring move")
			return nil
		}
		leadID, err = s.Kommo.FindLeadByCustomField(ctx, s.FieldIDs.Plate, plate)
		if err != nil {
			return err
		}
		if leadID == 0 {
			logger.WithField("plate", plate).Info("[sync] no lead found for plate, ignoring move")
			return nil
		}
	}
	logger = logger.WithField("lead", leadID)

	if err := s.Kommo.UpdateLeadStatus(ctx, leadID, statusID, s.PipelineID); err != nil {
		s.markLinkError(ctx, leadID, ev.CardID, err)
		return err
	}

	syncStatus := model.SyncStatusSynced
	if statusID == s.StatusDelivered {
		syncStatus = model.SyncStatusCompleted
	}
	if err := s.Repo.UpsertLink(ctx, &model.SyncLink{
		LeadID:     leadID,
		CardID:     ev.CardID,
		SyncStatus: syncStatus,
	}); err != nil {
		logger.WithField("error", err).Error("[sync] failed to update sync link")
	}

	if syncStatus == model.SyncStatusCompleted {
		// Closing annotation on the lead; best-effort.
		note := &model.KommoNote{
			EntityID:   leadID,
			EntityType: "leads",
			NoteType:   "common",
			Params: model.KommoNoteParams{
				Text: fmt.Sprintf("✅ Veículo entregue. Card movido para %q no Trello.", ev.ListAfterName),
			},
		}
		if err := s.Kommo.AddNote(ctx, note); err != nil {
			logger.WithField("error", err).Warn("[sync] failed to add delivery note")
		}
	}

	changed, _ := json.Marshal(map[string]int64{"status_id": statusID})
	if err := s.Repo.RecordTransition(ctx, &model.CardTransition{
		CardID:        ev.CardID,
		ActionType:    model.ActionMoved,
		FromList:      ev.ListBeforeName,
		ToList:        ev.ListAfterName,
		ChangedFields: changed,
	}); err != nil {
		logger.WithField("error", err).Error("[sync] failed to record transition")
	}

	s.Notifier.NotifySync(ctx, &model.SyncNotification{
		Direction:  model.DirectionTrelloToKommo,
		Plate:      plate,
		StatusFrom: ev.ListBeforeName,
		StatusTo:   ev.ListAfterName,
		LeadID:     leadID,
	})

	logger.WithField("status", statusID).Info("[sync] lead status updated from board move")
	return nil
}

func (s *SyncService) cardPlate(ctx context.Context, ev *CardMoveEvent) string {
	if mirror, err := s.Repo.GetCard(ctx, ev.CardID); err == nil && mirror != nil && mirror.Placa != "" {
		return mirror.Placa
	}
	plate, ok := PlateFromCardName(ev.CardName)
	if !ok {
		log.WithFields(log.Fields{"card": ev.CardID, "name": ev.CardName}).Warn("[sync] plate extraction failed")
		return ""
	}
	return plate
}

func (s *SyncService) markLinkError(ctx context.Context, leadID int64, cardID string, cause error) {
	err := s.Repo.UpsertLink(ctx, &model.SyncLink{
		LeadID:     leadID,
		CardID:     cardID,
		SyncStatus: model.SyncStatusError,
		SyncError:  cause.Error(),
	})
	if err != nil {
		log.WithFields(log.Fields{"lead": leadID, "error": err}).Error("[sync] failed to mark link as errored")
	}
}

// entryDateISO normalizes the lead's scheduling date for the Trello date
// custom field. Unparseable values are dropped, the field is optional.
func entryDateISO(raw string) string {
	if raw == "" || raw == "Sem data" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}
