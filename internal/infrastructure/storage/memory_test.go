package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsercore/internal/application/port/output"
)

func TestNewMemory_ReturnsTheSettingsItWasConstructedWith(t *testing.T) {
	m := NewMemory(output.Settings{APIKey: "key", Model: "anthropic/claude-3.5-sonnet"})

	settings, err := m.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key", settings.APIKey)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", settings.Model)
}

func TestSaveConversation_AppendsNewConversations(t *testing.T) {
	m := NewMemory(output.Settings{})

	require.NoError(t, m.SaveConversation(context.Background(), output.Conversation{ID: "a", Messages: []byte("first")}))
	require.NoError(t, m.SaveConversation(context.Background(), output.Conversation{ID: "b", Messages: []byte("second")}))

	convs, err := m.GetConversations(context.Background())
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestSaveConversation_OverwritesAnExistingIDInPlace(t *testing.T) {
	m := NewMemory(output.Settings{})
	require.NoError(t, m.SaveConversation(context.Background(), output.Conversation{ID: "a", Messages: []byte("first")}))
	require.NoError(t, m.SaveConversation(context.Background(), output.Conversation{ID: "a", Messages: []byte("updated")}))

	convs, err := m.GetConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, []byte("updated"), convs[0].Messages)
}

func TestGetConversations_ReturnsACopyNotTheInternalSlice(t *testing.T) {
	m := NewMemory(output.Settings{})
	require.NoError(t, m.SaveConversation(context.Background(), output.Conversation{ID: "a"}))

	convs, err := m.GetConversations(context.Background())
	require.NoError(t, err)
	convs[0].ID = "mutated"

	convsAgain, err := m.GetConversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", convsAgain[0].ID)
}
