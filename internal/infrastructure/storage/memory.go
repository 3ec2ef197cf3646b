// Package storage provides an in-memory output.StoragePort — real
// persistence is an explicit Non-goal of this system; this stub exists
// so the core has something to call at the conversation boundary.
package storage

import (
	"context"
	"sync"

	"browsercore/internal/application/port/output"
)

var _ output.StoragePort = (*Memory)(nil)

type Memory struct {
	mu            sync.Mutex
	settings      output.Settings
	conversations []output.Conversation
}

func NewMemory(settings output.Settings) *Memory {
	return &Memory{settings: settings}
}

func (m *Memory) GetSettings(ctx context.Context) (output.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *Memory) GetConversations(ctx context.Context) ([]output.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]output.Conversation, len(m.conversations))
	copy(out, m.conversations)
	return out, nil
}

func (m *Memory) SaveConversation(ctx context.Context, conv output.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.conversations {
		if existing.ID == conv.ID {
			m.conversations[i] = conv
			return nil
		}
	}
	m.conversations = append(m.conversations, conv)
	return nil
}
