package model

import "encoding/json"

// TrelloCard is the card shape returned by the Trello REST API
// (GET /boards/{id}/cards?customFieldItems=true).
type TrelloCard struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Desc             string                  `json:"desc"`
	IDList           string                  `json:"idList"`
	URL              string                  `json:"url"`
	Labels           []TrelloLabel           `json:"labels"`
	DateLastActivity string                  `json:"dateLastActivity"`
	CustomFieldItems []TrelloCustomFieldItem `json:"customFieldItems,omitempty"`
}

type TrelloLabel struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TrelloCustomFieldItem holds the value of one custom field on one card.
// Dropdown fields reference an option through IDValue, every other type
// carries the value inline.
type TrelloCustomFieldItem struct {
	ID            string                  `json:"id"`
	IDCustomField string                  `json:"idCustomField"`
	IDValue       string                  `json:"idValue,omitempty"`
	Value         *TrelloCustomFieldValue `json:"value,omitempty"`
}

type TrelloCustomFieldValue struct {
	Text   string `json:"text,omitempty"`
	Date   string `json:"date,omitempty"`
	Number string `json:"number,omitempty"`
}

type TrelloList struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Pos  float64 `json:"pos"`
}

// TrelloCustomField is a board-level custom field definition.
type TrelloCustomField struct {
	ID      string                    `json:"id"`
	Name    string                    `json:"name"`
	Type    string                    `json:"type"`
	Options []TrelloCustomFieldOption `json:"options,omitempty"`
}

type TrelloCustomFieldOption struct {
	ID    string                 `json:"id"`
	Value TrelloCustomFieldValue `json:"value"`
}

// MirrorCard is the local projection of a Trello card kept in the
// trello_cards table. The structured fields (Placa, Modelo, ...) are
// extracted from the card's custom field items during a sweep so that
// downstream lookups do not have to re-parse the card title.
type MirrorCard struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	IDList             string          `json:"id_list"`
	ListName           string          `json:"list_name"`
	Labels             json.RawMessage `json:"labels,omitempty"`
	CustomFields       json.RawMessage `json:"custom_fields,omitempty"`
	Placa              string          `json:"placa,omitempty"`
	Modelo             string          `json:"modelo,omitempty"`
	ResponsavelTecnico string          `json:"responsavel_tecnico,omitempty"`
	ValorAprovado      string          `json:"valor_aprovado,omitempty"`
	PrevisaoEntrega    string          `json:"previsao_entrega,omitempty"`
	KommoLeadID        *int64          `json:"kommo_lead_id,omitempty"`
	DateLastActivity   string          `json:"date_last_activity,omitempty"`
}

// TrelloWebhook is the inbound webhook payload. Only action.type is
// guaranteed; the rest depends on the event.
type TrelloWebhook struct {
	Action TrelloAction `json:"action"`
}

type TrelloAction struct {
	Type string           `json:"type"`
	Date string           `json:"date"`
	Data TrelloActionData `json:"data"`
}

type TrelloActionData struct {
	Card       *TrelloActionCard `json:"card"`
	List       *TrelloActionList `json:"list"`
	ListBefore *TrelloActionList `json:"listBefore"`
	ListAfter  *TrelloActionList `json:"listAfter"`
}

type TrelloActionCard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IDList string `json:"idList"`
}

type TrelloActionList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
