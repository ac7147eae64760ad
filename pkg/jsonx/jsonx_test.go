package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLoose(t *testing.T) {
	type payload struct {
		Tasks []string `json:"tasks"`
	}

	tests := []struct {
		name  string
		input string
		want  []string
		ok    bool
	}{
		{"raw json", `{"tasks":["a"]}`, []string{"a"}, true},
		{"fenced json", "```json\n{\"tasks\":[\"a\",\"b\"]}\n```", []string{"a", "b"}, true},
		{"fence without tag", "```\n{\"tasks\":[]}\n```", []string{}, true},
		{"surrounding whitespace", "  \n{\"tasks\":[\"x\"]}\n ", []string{"x"}, true},
		{"not json", "here are some thoughts instead", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := DecodeLoose(tt.input, &p)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Tasks)
		})
	}
}
