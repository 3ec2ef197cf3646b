package agentloop

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"browsercore/internal/domain/entity"
)

var (
	tokenEncOnce sync.Once
	tokenEnc     *tiktoken.Tiktoken
)

// countTranscriptTokens estimates the pruned transcript's token cost so
// the loop can log growth over a run; a failure to load the encoding
// (e.g. no network access to fetch its vocabulary file) degrades to 0
// rather than interrupting the run.
func countTranscriptTokens(messages []entity.Message) int {
	tokenEncOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEnc = enc
		}
	})
	if tokenEnc == nil {
		return 0
	}

	total := 0
	for _, m := range messages {
		total += 4 + len(tokenEnc.Encode(m.Content, nil, nil)) + len(tokenEnc.Encode(string(m.Role), nil, nil))
	}
	return total
}
