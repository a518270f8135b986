package progress_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bit-project/bit/pkg/progress"
	"github.com/stretchr/testify/assert"
)

func TestProgress_Step(t *testing.T) {
	var calls []int
	p := progress.New("push", 2, func(op string, current, total int, message string) {
		assert.Equal(t, "push", op)
		assert.Equal(t, 2, total)
		calls = append(calls, current)
	})
	p.Step("c1")
	p.Step("c2")
	assert.Equal(t, []int{1, 2}, calls)
	assert.Equal(t, 2, p.Current())
}

func TestProgress_NilCallback(t *testing.T) {
	p := progress.New("pull", 0, nil)
	p.Step("x")
	assert.Equal(t, 1, p.Current())
}

func TestTerminal_KnownTotal(t *testing.T) {
	var buf bytes.Buffer
	term := progress.NewTerminal(&buf)
	cb := term.Callback()
	cb("push", 1, 2, "01HX")
	cb("push", 2, 2, "")
	term.Done()

	out := buf.String()
	assert.Contains(t, out, "push [==========          ] 1/2 01HX")
	assert.Contains(t, out, "push [====================] 2/2")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTerminal_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	term := progress.NewTerminal(&buf)
	term.Callback()("pull", 3, 0, "")
	assert.Contains(t, buf.String(), "pull... 3")
}

func TestTerminal_DoneWithoutOutput(t *testing.T) {
	var buf bytes.Buffer
	progress.NewTerminal(&buf).Done()
	assert.Empty(t, buf.String())
}
