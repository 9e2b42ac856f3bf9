package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyEndpoint_ReturnsNoOpProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), "paraport-test", "", true, 0.1)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 0, want: "AlwaysOnSampler"},
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 1.5, want: "AlwaysOnSampler"},
		{ratio: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Contains(t, newSampler(tt.ratio).Description(), "root:"+tt.want)
	}
}

func TestEnd_RecordsErrorWithoutPanicking(t *testing.T) {
	shutdown, err := Init(context.Background(), "paraport-test", "", true, 1)
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := Tracer("test").Start(context.Background(), "op")
	assert.NotPanics(t, func() { End(span, errors.New("boom")) })

	_, span = Tracer("test").Start(context.Background(), "op")
	assert.NotPanics(t, func() { End(span, nil) })
}
