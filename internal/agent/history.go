package agent

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"personachat/internal/models"
)

// The runner history is opaque to the rest of the service: items are only
// appended and round-tripped. The shapes below exist solely at the runner
// boundary, to build outgoing model messages and to mint the two items a
// completed turn adds.

type historyEntry struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewUserItem mints the opaque history item for a user message.
func NewUserItem(text string) models.HistoryItem {
	return mustItem(historyEntry{
		Role:    string(models.RoleUser),
		Content: mustBlocks([]contentBlock{{Type: "input_text", Text: text}}),
	})
}

// NewAssistantItem mints the opaque history item for an assistant reply.
func NewAssistantItem(text string) models.HistoryItem {
	return mustItem(historyEntry{
		Role:    string(models.RoleAssistant),
		Content: mustBlocks([]contentBlock{{Type: "output_text", Text: text}}),
	})
}

func mustItem(entry historyEntry) models.HistoryItem {
	data, err := json.Marshal(entry)
	if err != nil {
		// historyEntry marshaling cannot fail on string content
		panic(err)
	}
	return models.HistoryItem(data)
}

func mustBlocks(blocks []contentBlock) json.RawMessage {
	data, err := json.Marshal(blocks)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(data)
}

// toSchemaMessages converts history items into eino messages for the model.
// Items that do not decode to a role/content shape are skipped with a
// warning; they still round-trip unchanged through the store.
func toSchemaMessages(items []models.HistoryItem) []*schema.Message {
	messages := make([]*schema.Message, 0, len(items))
	for _, item := range items {
		var entry historyEntry
		if err := json.Unmarshal(item, &entry); err != nil || entry.Role == "" {
			log.Warn().Msg("skipping undecodable history item for model input")
			continue
		}
		text, ok := entryText(entry)
		if !ok {
			continue
		}
		messages = append(messages, &schema.Message{
			Role:    schemaRole(entry.Role),
			Content: text,
		})
	}
	return messages
}

func entryText(entry historyEntry) (string, bool) {
	var blocks []contentBlock
	if err := json.Unmarshal(entry.Content, &blocks); err == nil {
		var text string
		for _, b := range blocks {
			text += b.Text
		}
		return text, text != ""
	}
	var plain string
	if err := json.Unmarshal(entry.Content, &plain); err == nil {
		return plain, plain != ""
	}
	return "", false
}

func schemaRole(role string) schema.RoleType {
	switch models.Role(role) {
	case models.RoleUser:
		return schema.User
	case models.RoleAssistant:
		return schema.Assistant
	case models.RoleSystem:
		return schema.System
	default:
		return schema.User
	}
}
