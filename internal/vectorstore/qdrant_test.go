package vectorstore_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vivenda-labs/ragd/internal/vectorstore"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfigApplyDefaults(t *testing.T) {
	var cfg vectorstore.QdrantConfig
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 384, cfg.VectorSize)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
}

func TestQdrantConfigApplyDefaultsKeepsExplicit(t *testing.T) {
	cfg := vectorstore.QdrantConfig{Host: "qdrant.internal", Port: 7334, VectorSize: 768}
	cfg.ApplyDefaults()

	assert.Equal(t, "qdrant.internal", cfg.Host)
	assert.Equal(t, 7334, cfg.Port)
	assert.Equal(t, 768, cfg.VectorSize)
}

func TestQdrantConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    vectorstore.QdrantConfig
		wantError bool
	}{
		{
			name:   "valid",
			config: vectorstore.QdrantConfig{Host: "localhost", Port: 6334, VectorSize: 384},
		},
		{
			name:      "missing host",
			config:    vectorstore.QdrantConfig{Port: 6334, VectorSize: 384},
			wantError: true,
		},
		{
			name:      "port out of range",
			config:    vectorstore.QdrantConfig{Host: "localhost", Port: 70000, VectorSize: 384},
			wantError: true,
		},
		{
			name:      "zero vector size",
			config:    vectorstore.QdrantConfig{Host: "localhost", Port: 6334},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: status.Error(grpccodes.Unavailable, "connection refused"), want: true},
		{name: "deadline exceeded", err: status.Error(grpccodes.DeadlineExceeded, "timeout"), want: true},
		{name: "aborted", err: status.Error(grpccodes.Aborted, "conflict"), want: true},
		{name: "resource exhausted", err: status.Error(grpccodes.ResourceExhausted, "rate limited"), want: true},
		{name: "invalid argument", err: status.Error(grpccodes.InvalidArgument, "bad vector"), want: false},
		{name: "not found", err: status.Error(grpccodes.NotFound, "no collection"), want: false},
		{name: "permission denied", err: status.Error(grpccodes.PermissionDenied, "forbidden"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vectorstore.IsTransientError(tt.err))
		})
	}
}
