package service

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

// StatusMap translates a Trello list name into a Kommo status id. A list
// that is absent from the map is simply not sync-worthy.
type StatusMap map[string]int64

// DefaultStatusMap is the DOCTOR PRIME pipeline mapping. Deployments can
// override it with a JSON file (STATUS_MAP_FILE) instead of rebuilding.
func DefaultStatusMap() StatusMap {
	return StatusMap{
		"🟢 AGENDAMENTO CONFIRMADO":      98072196,
		"Diagnóstico":                    98064300,
		"Orçamento":                      98064308,
		"Aguardando Aprovação":           98064384,
		"Aguardando Peças":               98071472,
		"Em Execução":                    98328508,
		"Qualidade":                      98328508,
		"🟬 Pronto / Aguardando Retirada": 98328508,
		"🙏🏻Entregue":                     98067596,
		"Closed - Won":                   142,
		"Closed - Lost":                  143,
	}
}

// LoadStatusMap reads a {"list name": statusID} JSON file. An empty path
// returns the compiled-in default.
func LoadStatusMap(path string) (StatusMap, error) {
	if path == "" {
		return DefaultStatusMap(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status map: %w", err)
	}
	var m StatusMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse status map: %w", err)
	}
	return m, nil
}

func (m StatusMap) StatusForList(listName string) (int64, bool) {
	id, ok := m[listName]
	return id, ok
}

const cardNameSeparator = " - "

// BuildCardName composes the card title in the "data - nome - placa"
// format the shop uses on the board.
func BuildCardName(date, name, plate string) string {
	return date + cardNameSeparator + name + cardNameSeparator + plate
}

// PlateFromCardName extracts the plate as the last "-"-separated segment
// of a card title. Titles are human-edited, so this is a heuristic: it
// needs at least data-nome-placa to trust the last segment.
func PlateFromCardName(cardName string) (string, bool) {
	parts := strings.Split(cardName, "-")
	if len(parts) < 3 {
		return "", false
	}
	plate := strings.TrimSpace(parts[len(parts)-1])
	if plate == "" {
		return "", false
	}
	return plate, true
}

// LeadFieldIDs are the Kommo custom field ids the mapper reads.
type LeadFieldIDs struct {
	Plate int64
	Name  int64
	Date  int64
}

// CardContent is what gets written to a freshly created Trello card.
type CardContent struct {
	Name  string
	Desc  string
	Plate string
	Date  string
}

// LeadCardContent maps a confirmed lead into card title and description.
// Missing fields fall back to placeholders so the card is still usable by
// the yard team.
func LeadCardContent(lead *model.KommoLead, ids LeadFieldIDs) CardContent {
	date := lead.CustomField(ids.Date)
	if date == "" {
		date = "Sem data"
	}
	name := lead.CustomField(ids.Name)
	if name == "" {
		name = lead.Name
	}
	if name == "" {
		name = "Sem nome"
	}
	plate := lead.CustomField(ids.Plate)
	if plate == "" {
		plate = "SEM PLACA"
	}

	var b strings.Builder
	b.WriteString("**Lead do Kommo - Agendamento Confirmado**\n\n")
	fmt.Fprintf(&b, "**🚗 Placa:** %s\n", plate)
	fmt.Fprintf(&b, "📅 **Data Agendamento:** %s\n", date)
	fmt.Fprintf(&b, "👤 **Cliente:** %s\n", name)
	fmt.Fprintf(&b, "🆔 **Kommo Lead ID:** %d\n", lead.ID)
	if lead.ResponsibleUserID != 0 {
		fmt.Fprintf(&b, "🧑‍🔧 **Responsável:** %d\n", lead.ResponsibleUserID)
	}
	b.WriteString("\n---\n\n")
	b.WriteString("_Card criado automaticamente via integração Kommo → Trello_\n")

	return CardContent{
		Name:  BuildCardName(date, name, plate),
		Desc:  b.String(),
		Plate: plate,
		Date:  date,
	}
}
