package template_test

import (
	"testing"
	"time"

	"github.com/bit-project/bit/pkg/template"
	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	tests := []struct {
		in   string
		vars map[string]string
		want string
	}{
		{"plain", nil, "plain"},
		{"{date}", nil, "2024-03-05"},
		{"{time}", nil, "14:07:09"},
		{"{datetime}", nil, "2024-03-05 14:07:09"},
		{"{iso8601}", nil, "2024-03-05T14:07:09Z"},
		{"{unix}", nil, "1709647629"},
		{"{unknown}", nil, "{unknown}"},
		{"by {user}", map[string]string{"user": "alice"}, "by alice"},
		{"{date}", map[string]string{"date": "today"}, "today"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, template.Expand(tt.in, now, tt.vars), tt.in)
	}
}

func TestExpand_Hostname(t *testing.T) {
	out := template.Expand("{hostname}", time.Now(), nil)
	assert.NotEmpty(t, out)
	assert.NotContains(t, out, "{")
}

func TestCommitMessage(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	msg := template.CommitMessage("{user}: {count} changes on {date}", "bob", 3, now)
	assert.Equal(t, "bob: 3 changes on 2024-03-05", msg)
}
