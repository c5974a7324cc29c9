package service

import (
	"context"
	"sync"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

// memRepo is an in-memory SyncRepository for tests.
type memRepo struct {
	mu          sync.Mutex
	cards       map[string]*model.MirrorCard
	lists       map[string]*model.TrelloList
	fields      map[string]*model.TrelloCustomField
	linksByLead map[int64]*model.SyncLink
	transitions []*model.CardTransition

	accessToken  string
	refreshToken string
	tokenSaves   int
}

func newMemRepo() *memRepo {
	return &memRepo{
		cards:       map[string]*model.MirrorCard{},
		lists:       map[string]*model.TrelloList{},
		fields:      map[string]*model.TrelloCustomField{},
		linksByLead: map[int64]*model.SyncLink{},
	}
}

func (r *memRepo) UpsertCard(_ context.Context, c *model.MirrorCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.cards[c.ID] = &cp
	return nil
}

func (r *memRepo) GetCard(_ context.Context, id string) (*model.MirrorCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) UpsertList(_ context.Context, _ string, l *model.TrelloList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.lists[l.ID] = &cp
	return nil
}

func (r *memRepo) UpsertCustomField(_ context.Context, _ string, f *model.TrelloCustomField) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.fields[f.ID] = &cp
	return nil
}

func (r *memRepo) FindLinkByLeadID(_ context.Context, leadID int64) (*model.SyncLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.linksByLead[leadID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memRepo) FindLinkByCardID(_ context.Context, cardID string) (*model.SyncLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.linksByLead {
		if l.CardID == cardID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) UpsertLink(_ context.Context, l *model.SyncLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.linksByLead[l.LeadID] = &cp
	return nil
}

func (r *memRepo) RecordTransition(_ context.Context, t *model.CardTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transitions = append(r.transitions, &cp)
	return nil
}

func (r *memRepo) SaveKommoTokens(_ context.Context, accessToken, refreshToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessToken = accessToken
	r.refreshToken = refreshToken
	r.tokenSaves++
	return nil
}
