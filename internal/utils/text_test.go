package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tabloom/tabloom/internal/utils"
)

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, utils.CountTokens(""))
	assert.Equal(t, 1, utils.CountTokens("ab"))
	assert.Equal(t, 3, utils.CountTokens("twelve chars"))
}

func TestTruncateToTokenLimit(t *testing.T) {
	text := strings.Repeat("a", 100)
	assert.Len(t, utils.TruncateToTokenLimit(text, 10), 40)
	assert.Equal(t, text, utils.TruncateToTokenLimit(text, 1000))
	assert.Equal(t, "", utils.TruncateToTokenLimit(text, 0))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, utils.StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, utils.StripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, utils.StripCodeFences(`{"a":1}`))
	// fence with content on the opening line is kept
	assert.Equal(t, `{"a":1}`, utils.StripCodeFences("```{\"a\":1}```"))
}
