package alert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombineBothSucceeded(t *testing.T) {
	out := Combine(Succeeded(), Succeeded())
	assert.True(t, out.Success)
	assert.Nil(t, out.Err)
}

func TestCombinePropagatesSingleFailure(t *testing.T) {
	cause := errors.New("SMTP timeout")
	failed := Failed(cause)

	out := Combine(Succeeded(), failed)
	assert.False(t, out.Success)
	assert.Same(t, failed.Err, out.Err)

	out = Combine(failed, Succeeded())
	assert.False(t, out.Success)
	assert.Same(t, failed.Err, out.Err)
}

func TestCombineMergesFailures(t *testing.T) {
	first := errors.New("SMTP timeout")
	second := errors.New("HTTP 503 from hook")

	out := Combine(Failed(first), Failed(second))
	assert.False(t, out.Success)
	assert.Equal(t, "SMTP timeout\nHTTP 503 from hook", out.Err.Message)
	assert.Same(t, first, out.Err.Cause)
	assert.ErrorIs(t, out.Err, first)
	assert.NotErrorIs(t, out.Err, second)
}

func TestMergeKeepsMultilineMessagesWhole(t *testing.T) {
	first := errors.New("webhook rejected:\nline 1: bad token")
	second := errors.New("SMTP timeout")

	out := Combine(Failed(first), Failed(second))
	assert.Equal(t, []string{"webhook rejected:\nline 1: bad token", "SMTP timeout"}, out.Err.Messages)
	assert.Equal(t, "webhook rejected:\nline 1: bad token\nSMTP timeout", out.Err.Message)
}

func TestReduceKeepsFirstCause(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")
	c := errors.New("c")

	out := Reduce([]Outcome{Succeeded(), Failed(a), Succeeded(), Failed(b), Failed(c)})
	assert.False(t, out.Success)
	assert.Equal(t, "a\nb\nc", out.Err.Error())
	assert.Equal(t, []string{"a", "b", "c"}, out.Err.Messages)
	assert.Same(t, a, out.Err.Cause)
}

func TestReduceEmpty(t *testing.T) {
	out := Reduce(nil)
	assert.True(t, out.Success)
	assert.Nil(t, out.Err)
}

func TestChannelError(t *testing.T) {
	base := errors.New("connection refused")
	err := NewChannelError(WeCom, base, "POST %s", "https://hook")
	assert.Equal(t, "wecom alert failed: POST https://hook: connection refused", err.Error())
	assert.ErrorIs(t, err, base)

	err = NewChannelError(Lark, nil, "status code %d", 503)
	assert.Equal(t, "lark alert failed: status code 503", err.Error())
}
