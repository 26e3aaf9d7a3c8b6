package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatusKnownValues(t *testing.T) {
	assert.Equal(t, StatusDraft, ParseStatus("draft"))
	assert.Equal(t, StatusProcessing, ParseStatus("processing"))
	assert.Equal(t, StatusReady, ParseStatus("ready"))
	assert.Equal(t, StatusFailed, ParseStatus("failed"))
}

func TestParseStatusFallsBackToDraft(t *testing.T) {
	assert.Equal(t, StatusDraft, ParseStatus(""))
	assert.Equal(t, StatusDraft, ParseStatus("READY"))
	assert.Equal(t, StatusDraft, ParseStatus("corrupt-value"))
}

func TestDocumentStatusAccessor(t *testing.T) {
	doc := Document{StatusRaw: "ready"}
	assert.Equal(t, StatusReady, doc.Status())

	doc.StatusRaw = "garbage"
	assert.Equal(t, StatusDraft, doc.Status())
}
