package model

// Manual notification types sent by the shop-floor UI buttons.
const (
	NotifyIssue = "issue" // part problem found during service
	NotifyReady = "ready" // vehicle ready for pickup
)

// Notification is the payload of POST /notify.
type Notification struct {
	Type     string `json:"type"`
	Plate    string `json:"plate"`
	Model    string `json:"model,omitempty"`
	Assignee string `json:"assignee"`
	Time     string `json:"time"`
	Note     string `json:"note,omitempty"`
}

// Sync notification directions.
const (
	DirectionKommoToTrello = "kommo_to_trello"
	DirectionTrelloToKommo = "trello_to_kommo"
)

// SyncNotification describes one propagation for the Telegram channel.
type SyncNotification struct {
	Direction  string `json:"direction"`
	Plate      string `json:"plate"`
	Name       string `json:"name,omitempty"`
	Date       string `json:"date,omitempty"`
	StatusFrom string `json:"status_from,omitempty"`
	StatusTo   string `json:"status_to,omitempty"`
	CardURL    string `json:"card_url,omitempty"`
	LeadID     int64  `json:"lead_id,omitempty"`
}
