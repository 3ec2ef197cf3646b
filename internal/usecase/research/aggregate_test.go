package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsercore/internal/domain/entity"
)

func TestAggregate_FormatsEachSourceWithStatusEmoji(t *testing.T) {
	llm := &scriptedLLM{content: "synthesized answer"}
	results := []entity.SubTaskResult{
		{SubTask: entity.SubTask{URL: "https://a.example", ExtractionGoal: "price"}, Status: entity.SubTaskSuccess, ExtractedData: "$10"},
		{SubTask: entity.SubTask{URL: "https://b.example", ExtractionGoal: "price"}, Status: entity.SubTaskTimeout, ExtractedData: "partial"},
		{SubTask: entity.SubTask{URL: "https://c.example", ExtractionGoal: "price"}, Status: entity.SubTaskError, Error: "could not load page"},
	}

	answer, err := aggregate(context.Background(), llm, "system", "compare prices", results)
	require.NoError(t, err)
	assert.Equal(t, "synthesized answer", answer)

	require.Len(t, llm.lastReq.Messages, 1)
	content := llm.lastReq.Messages[0].Content
	assert.Contains(t, content, "Source 1: ✅ https://a.example\nGoal: price\nExtracted: $10\n")
	assert.Contains(t, content, "Source 2: ⏱ https://b.example\nGoal: price\nExtracted: partial\n")
	assert.Contains(t, content, "Source 3: ❌ https://c.example\nGoal: price\nError: could not load page\n")
}

func TestAggregate_PropagatesLLMError(t *testing.T) {
	llm := &scriptedLLM{err: assertErr("rate limited")}

	_, err := aggregate(context.Background(), llm, "system", "compare prices", nil)
	assert.ErrorContains(t, err, "aggregation call failed")
}

func TestStatusEmoji(t *testing.T) {
	assert.Equal(t, "✅", statusEmoji(entity.SubTaskSuccess))
	assert.Equal(t, "⏱", statusEmoji(entity.SubTaskTimeout))
	assert.Equal(t, "❌", statusEmoji(entity.SubTaskError))
}
