package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"classfinder/internal/pipeline"
)

func TestOnceExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"missing sources are reported", fmt.Errorf("%w: data/rooms.json", pipeline.ErrSourceMissing), 0},
		{"write failure", errors.New("disk full"), 1},
		{"cancelled", fmt.Errorf("fetch: %w", errors.New("context canceled")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, onceExitCode(tt.err))
		})
	}
}
