package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "none", args: nil, want: ""},
		{name: "long", args: []string{"--config", "server.yaml"}, want: "server.yaml"},
		{name: "long with equals", args: []string{"--config=server.yaml"}, want: "server.yaml"},
		{name: "short", args: []string{"-c", "server.yaml"}, want: "server.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	_, err := parseFlags([]string{"--port", "80"})
	assert.Error(t, err)
}
