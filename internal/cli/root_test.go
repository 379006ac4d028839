package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand_RegistersSubcommands(t *testing.T) {
	t.Parallel()

	cmd := NewRootCommand()

	want := []string{
		"login", "signup", "logout", "whoami", "profile",
		"feed", "post", "like", "comment",
	}

	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestParsePostID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		arg     string
		want    int64
		wantErr bool
	}{
		{name: "numeric", arg: "42", want: 42},
		{name: "negative", arg: "-1", want: -1},
		{name: "not a number", arg: "abc", wantErr: true},
		{name: "empty", arg: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parsePostID(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
