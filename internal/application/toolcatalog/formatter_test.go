package toolcatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"browsercore/internal/domain/entity"
)

func TestFormatSnapshot_EmptyElementsGetsStillLoadingHint(t *testing.T) {
	snap := &entity.Snapshot{URL: "https://example.com", Title: "Example"}
	out := FormatSnapshot(snap)
	assert.Contains(t, out, "ELEMENTS (0 total):")
	assert.Contains(t, out, "(none — page may still be loading)")
}

func TestFormatSnapshot_NonEmptyElementsOmitsStillLoadingHint(t *testing.T) {
	snap := &entity.Snapshot{
		URL:      "https://example.com",
		Elements: []entity.SnapshotElement{{UID: 1, Tag: "button", Name: "Add to cart"}},
	}
	out := FormatSnapshot(snap)
	assert.NotContains(t, out, "(none — page may still be loading)")
}

func TestFormatSnapshot_NilSnapshotOmitsStillLoadingHint(t *testing.T) {
	out := FormatSnapshot(nil)
	assert.Contains(t, out, "ELEMENTS (0 total):")
	assert.NotContains(t, out, "(none — page may still be loading)")
}
