package obslog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNoOp_DiscardsEverything(t *testing.T) {
	l := NewNoOp()
	assert.NotPanics(t, func() {
		l.Debug("msg", "k", "v")
		l.Info("msg")
		l.Warn("msg", "k", 1)
		l.Error("msg", nil, "k", "v")
	})
}

func TestNewSlog_WritesStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	l := NewSlog(handler)

	l.Info("hello world", "key", "value")

	assert.Contains(t, buf.String(), "hello world")
}

func TestNewSlog_ErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	l := NewSlog(handler)

	l.Error("failed", assertError("boom"))

	assert.Contains(t, buf.String(), "failed")
	assert.Contains(t, buf.String(), "boom")
}

type assertError string

func (e assertError) Error() string { return string(e) }
