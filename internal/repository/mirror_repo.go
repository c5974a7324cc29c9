package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

// Mirror store operations. Everything is an upsert keyed on the remote id:
// Trello and Kommo stay the sources of truth, the mirror is a cache, so
// last-writer-wins is enough for concurrent webhook deliveries.

func (r *PostgresRepo) UpsertList(ctx context.Context, boardID string, l *model.TrelloList) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO trello_lists (id, name, board_id, position, updated_at)
		VALUES ($1,$2,$3,$4, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			board_id = EXCLUDED.board_id,
			position = EXCLUDED.position,
			updated_at = now()
	`, l.ID, l.Name, boardID, l.Pos)
	return err
}

func (r *PostgresRepo) UpsertCustomField(ctx context.Context, boardID string, f *model.TrelloCustomField) error {
	var options interface{}
	if len(f.Options) > 0 {
		b, err := json.Marshal(f.Options)
		if err != nil {
			return err
		}
		options = b
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO trello_custom_fields (id, name, type, options, board_id, updated_at)
		VALUES ($1,$2,$3,$4,$5, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			options = EXCLUDED.options,
			board_id = EXCLUDED.board_id,
			updated_at = now()
	`, f.ID, f.Name, f.Type, options, boardID)
	return err
}

func (r *PostgresRepo) UpsertCard(ctx context.Context, c *model.MirrorCard) error {
	var leadID interface{}
	if c.KommoLeadID != nil {
		leadID = *c.KommoLeadID
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO trello_cards (
			id, name, description, id_list, list_name,
			labels, custom_fields,
			placa, modelo, responsavel_tecnico, valor_aprovado, previsao_entrega,
			kommo_lead_id, date_last_activity,
			synced_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,
			$8,$9,$10,$11,$12,
			$13,$14,
			now(), now()
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			id_list = EXCLUDED.id_list,
			list_name = EXCLUDED.list_name,
			labels = EXCLUDED.labels,
			custom_fields = EXCLUDED.custom_fields,
			placa = EXCLUDED.placa,
			modelo = EXCLUDED.modelo,
			responsavel_tecnico = EXCLUDED.responsavel_tecnico,
			valor_aprovado = EXCLUDED.valor_aprovado,
			previsao_entrega = EXCLUDED.previsao_entrega,
			kommo_lead_id = COALESCE(EXCLUDED.kommo_lead_id, trello_cards.kommo_lead_id),
			date_last_activity = EXCLUDED.date_last_activity,
			synced_at = now(),
			updated_at = now()
	`,
		c.ID, c.Name, c.Description, c.IDList, c.ListName,
		nullableJSON(c.Labels), nullableJSON(c.CustomFields),
		c.Placa, c.Modelo, c.ResponsavelTecnico, c.ValorAprovado, c.PrevisaoEntrega,
		leadID, c.DateLastActivity,
	)
	return err
}

func (r *PostgresRepo) GetCard(ctx context.Context, id string) (*model.MirrorCard, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, name, description, id_list, list_name,
		       placa, modelo, responsavel_tecnico, valor_aprovado, previsao_entrega,
		       kommo_lead_id, date_last_activity
		FROM trello_cards WHERE id = $1 LIMIT 1
	`, id)

	var c model.MirrorCard
	var (
		desc, listName, placa, modelo, resp, valor, previsao, activity sql.NullString
		leadID                                                         sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Name, &desc, &c.IDList, &listName,
		&placa, &modelo, &resp, &valor, &previsao,
		&leadID, &activity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Description = desc.String
	c.ListName = listName.String
	c.Placa = placa.String
	c.Modelo = modelo.String
	c.ResponsavelTecnico = resp.String
	c.ValorAprovado = valor.String
	c.PrevisaoEntrega = previsao.String
	c.DateLastActivity = activity.String
	if leadID.Valid {
		v := leadID.Int64
		c.KommoLeadID = &v
	}
	return &c, nil
}

func (r *PostgresRepo) FindLinkByLeadID(ctx context.Context, leadID int64) (*model.SyncLink, error) {
	return r.findLink(ctx, `SELECT lead_id, card_id, sync_status, sync_error, last_sync_at, created_at
		FROM sync_links WHERE lead_id = $1 LIMIT 1`, leadID)
}

func (r *PostgresRepo) FindLinkByCardID(ctx context.Context, cardID string) (*model.SyncLink, error) {
	return r.findLink(ctx, `SELECT lead_id, card_id, sync_status, sync_error, last_sync_at, created_at
		FROM sync_links WHERE card_id = $1 LIMIT 1`, cardID)
}

func (r *PostgresRepo) findLink(ctx context.Context, query string, arg interface{}) (*model.SyncLink, error) {
	row := r.DB.QueryRowContext(ctx, query, arg)
	var l model.SyncLink
	var syncErr sql.NullString
	err := row.Scan(&l.LeadID, &l.CardID, &l.SyncStatus, &syncErr, &l.LastSyncAt, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.SyncError = syncErr.String
	return &l, nil
}

func (r *PostgresRepo) UpsertLink(ctx context.Context, l *model.SyncLink) error {
	var syncErr interface{}
	if l.SyncError != "" {
		syncErr = l.SyncError
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO sync_links (lead_id, card_id, sync_status, sync_error, last_sync_at)
		VALUES ($1,$2,$3,$4, now())
		ON CONFLICT (lead_id) DO UPDATE SET
			card_id = EXCLUDED.card_id,
			sync_status = EXCLUDED.sync_status,
			sync_error = EXCLUDED.sync_error,
			last_sync_at = now()
	`, l.LeadID, l.CardID, l.SyncStatus, syncErr)
	return err
}

func (r *PostgresRepo) ListLinks(ctx context.Context) ([]model.SyncLink, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT lead_id, card_id, sync_status, sync_error, last_sync_at, created_at
		FROM sync_links ORDER BY last_sync_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SyncLink{}
	for rows.Next() {
		var l model.SyncLink
		var syncErr sql.NullString
		if err := rows.Scan(&l.LeadID, &l.CardID, &l.SyncStatus, &syncErr, &l.LastSyncAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.SyncError = syncErr.String
		out = append(out, l)
	}
	return out, rows.Err()
}

// RecordTransition appends one history row. History rows are never updated.
func (r *PostgresRepo) RecordTransition(ctx context.Context, t *model.CardTransition) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO trello_card_history (card_id, action_type, from_list, to_list, changed_fields)
		VALUES ($1,$2,$3,$4,$5)
	`, t.CardID, t.ActionType, nullableText(t.FromList), nullableText(t.ToList), nullableJSON(t.ChangedFields))
	return err
}

func (r *PostgresRepo) SaveKommoTokens(ctx context.Context, accessToken, refreshToken string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO kommo_config (id, access_token, refresh_token, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			updated_at = now()
	`, accessToken, refreshToken)
	return err
}

func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
