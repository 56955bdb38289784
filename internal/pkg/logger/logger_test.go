package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextFallsBackToGlobal(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestLogErrorUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := WithContext(context.Background(), &l)

	LogError(ctx, errors.New("boom"), "debit failed", "user_id", "u-1", "cost", 2, "dangling")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debit failed", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "u-1", line["user_id"])
	assert.EqualValues(t, 2, line["cost"])
	assert.NotContains(t, line, "dangling")
}
