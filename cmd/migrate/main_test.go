package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/giftcards?sslmode=disable", "pgx5://u:p@localhost:5432/giftcards?sslmode=disable"},
		{"postgresql://u@db/giftcards", "pgx5://u@db/giftcards"},
		{"pgx5://u@db/giftcards", "pgx5://u@db/giftcards"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}
