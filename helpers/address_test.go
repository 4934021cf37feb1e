package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitEmailAddress(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		wantLocal string
		wantDom   string
	}{
		{"plain address", "alice@campus.example.com", "alice", "campus.example.com"},
		{"mixed case", "Alice@Campus.Example.COM", "alice", "campus.example.com"},
		{"surrounding whitespace", "  bob@example.org ", "bob", "example.org"},
		{"no domain", "charlie", "charlie", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, domain := SplitEmailAddress(tt.email)
			assert.Equal(t, tt.wantLocal, local)
			assert.Equal(t, tt.wantDom, domain)
		})
	}
}
