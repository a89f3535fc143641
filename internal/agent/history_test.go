package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personachat/internal/models"
)

func TestNewUserItemShape(t *testing.T) {
	item := NewUserItem("how did you get into infra work?")

	var entry struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(item, &entry))
	assert.Equal(t, "user", entry.Role)
	require.Len(t, entry.Content, 1)
	assert.Equal(t, "input_text", entry.Content[0].Type)
	assert.Equal(t, "how did you get into infra work?", entry.Content[0].Text)
}

func TestToSchemaMessagesSkipsUndecodableItems(t *testing.T) {
	items := []models.HistoryItem{
		NewUserItem("question"),
		models.HistoryItem(`{"tool_call":{"id":"x","args":"{}"}}`),
		models.HistoryItem(`not json at all`),
		NewAssistantItem("answer"),
	}

	messages := toSchemaMessages(items)

	require.Len(t, messages, 2)
	assert.Equal(t, "question", messages[0].Content)
	assert.Equal(t, "answer", messages[1].Content)
}

func TestToSchemaMessagesPlainStringContent(t *testing.T) {
	items := []models.HistoryItem{
		models.HistoryItem(`{"role":"user","content":"plain text body"}`),
	}

	messages := toSchemaMessages(items)

	require.Len(t, messages, 1)
	assert.Equal(t, "plain text body", messages[0].Content)
}
