package model

import (
	"encoding/json"
	"strings"
)

// FlexString decodes a JSON value that Kommo sends either as a string or
// as a number (custom field values are not consistently typed).
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

type KommoLead struct {
	ID                int64                   `json:"id"`
	Name              string                  `json:"name"`
	Price             int64                   `json:"price,omitempty"`
	PipelineID        int64                   `json:"pipeline_id,omitempty"`
	StatusID          int64                   `json:"status_id,omitempty"`
	ResponsibleUserID int64                   `json:"responsible_user_id,omitempty"`
	CustomFields      []KommoCustomFieldValue `json:"custom_fields_values,omitempty"`
	Embedded          *KommoLeadEmbedded      `json:"_embedded,omitempty"`
}

type KommoCustomFieldValue struct {
	FieldID int64             `json:"field_id"`
	Values  []KommoFieldValue `json:"values"`
}

type KommoFieldValue struct {
	Value  FlexString `json:"value"`
	EnumID int64      `json:"enum_id,omitempty"`
}

type KommoLeadEmbedded struct {
	Tags     []KommoTag       `json:"tags,omitempty"`
	Contacts []KommoContactID `json:"contacts,omitempty"`
}

type KommoTag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type KommoContactID struct {
	ID int64 `json:"id"`
}

// CustomField returns the first value of the given custom field, or ""
// when the lead does not carry it.
func (l *KommoLead) CustomField(fieldID int64) string {
	for _, f := range l.CustomFields {
		if f.FieldID == fieldID && len(f.Values) > 0 {
			return f.Values[0].Value.String()
		}
	}
	return ""
}

type KommoContact struct {
	ID                int64                   `json:"id,omitempty"`
	Name              string                  `json:"name"`
	FirstName         string                  `json:"first_name,omitempty"`
	LastName          string                  `json:"last_name,omitempty"`
	ResponsibleUserID int64                   `json:"responsible_user_id,omitempty"`
	CustomFields      []KommoCustomFieldValue `json:"custom_fields_values,omitempty"`
}

type KommoNote struct {
	EntityID   int64           `json:"entity_id"`
	EntityType string          `json:"entity_type"` // leads, contacts, companies
	NoteType   string          `json:"note_type"`   // common, call_in, call_out
	Params     KommoNoteParams `json:"params"`
}

type KommoNoteParams struct {
	Text string `json:"text"`
}

// KommoWebhook is the inbound lead-change payload.
type KommoWebhook struct {
	Leads []KommoLead `json:"leads"`
}

// KommoTokenResponse is the OAuth refresh exchange result.
type KommoTokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
