package service

import (
	"context"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

// SyncRepository is the mirror-store surface the sync engine needs.
// *repository.PostgresRepo implements it; tests run on an in-memory fake.
// Lookups return (nil, nil) when the row does not exist.
type SyncRepository interface {
	UpsertCard(ctx context.Context, c *model.MirrorCard) error
	GetCard(ctx context.Context, id string) (*model.MirrorCard, error)
	UpsertList(ctx context.Context, boardID string, l *model.TrelloList) error
	UpsertCustomField(ctx context.Context, boardID string, f *model.TrelloCustomField) error

	FindLinkByLeadID(ctx context.Context, leadID int64) (*model.SyncLink, error)
	FindLinkByCardID(ctx context.Context, cardID string) (*model.SyncLink, error)
	UpsertLink(ctx context.Context, l *model.SyncLink) error

	RecordTransition(ctx context.Context, t *model.CardTransition) error
	SaveKommoTokens(ctx context.Context, accessToken, refreshToken string) error
}
