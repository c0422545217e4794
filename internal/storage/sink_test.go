package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIfExists(t *testing.T) {
	tests := []struct {
		input    string
		expected IfExists
		wantErr  bool
	}{
		{"", Replace, false},
		{"replace", Replace, false},
		{"APPEND", Append, false},
		{" fail ", Fail, false},
		{"merge", Replace, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseIfExists(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}

	assert.Equal(t, "IfExists(7)", IfExists(7).String())
}

func mustParse(t *testing.T, s string) IfExists {
	t.Helper()
	p, err := ParseIfExists(s)
	require.NoError(t, err)
	return p
}

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()
	defer sink.Close()

	df := finalTable(t)
	defer df.Release()

	require.NoError(t, sink.Write(ctx, "final_dataset", df, Replace))
	stored, ok := sink.Table("final_dataset")
	require.True(t, ok)
	assert.Equal(t, 2, stored.Len())

	require.NoError(t, sink.Write(ctx, "final_dataset", df, Append))
	stored, _ = sink.Table("final_dataset")
	assert.Equal(t, 4, stored.Len())

	require.ErrorIs(t, sink.Write(ctx, "final_dataset", df, Fail), ErrTableExists)

	require.NoError(t, sink.Write(ctx, "final_dataset", df, Replace))
	stored, _ = sink.Table("final_dataset")
	assert.Equal(t, 2, stored.Len())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, sink.Write(canceled, "other", df, Replace), context.Canceled)

	_, ok = sink.Table("other")
	assert.False(t, ok)
}
