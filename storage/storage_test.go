// storage/storage_test.go
package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/civicpulse/config"
)

func newLocal(t *testing.T) System {
	t.Helper()
	sys, err := NewLocal(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return sys
}

func TestLocalRoundTripIsByteIdentical(t *testing.T) {
	sys := newLocal(t)
	ctx := context.Background()
	data := []byte("Start Date,End Date,president\n3/4/2020,3/8/2020,donald-j-trump\n\xef\xbb\xbf tail")

	obj, err := Put(ctx, sys, "presidential_approvals/approval ratings loaded through 3-4-2020.csv", data, "text/csv")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), obj.Size)
	assert.Len(t, obj.Checksum, 64)

	got, err := Get(ctx, sys, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := sys.Exists(ctx, obj.Key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalUploadIsWriteOnce(t *testing.T) {
	sys := newLocal(t)
	ctx := context.Background()
	key := "economic_indicators/economic indicators_on_20250109.csv"

	require.NoError(t, sys.Upload(ctx, key, strings.NewReader("first"), "text/csv"))
	err := sys.Upload(ctx, key, strings.NewReader("second"), "text/csv")
	require.ErrorIs(t, err, ErrExists)

	got, err := Get(ctx, sys, key)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestLocalDownloadMissing(t *testing.T) {
	sys := newLocal(t)

	_, err := sys.Download(context.Background(), "nothing/here.json")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := sys.Exists(context.Background(), "nothing/here.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"", ErrEmptyKey},
		{"../escape.csv", ErrInvalidKey},
		{"a/../../b", ErrInvalidKey},
		{"/absolute.csv", ErrInvalidKey},
		{"executive_orders/dt=2025-01-24/lang=en/x.json", nil},
		{"file..with..dots.csv", nil},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, validateKey(tt.key))
		})
	}
}

func TestNewSelectsBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sys, err := New(config.StorageConfig{Backend: "local", LocalDir: t.TempDir()}, logger)
	require.NoError(t, err)
	assert.NotNil(t, sys)

	_, err = New(config.StorageConfig{Backend: "gcs"}, logger)
	assert.Error(t, err)

	_, err = New(config.StorageConfig{Backend: "azure", ConnectionString: "not-a-connection-string"}, logger)
	assert.Error(t, err)
}

func TestKeysAreDeterministic(t *testing.T) {
	day := time.Date(2025, 1, 24, 15, 4, 5, 0, time.UTC)
	friday := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "economic_indicators/economic indicators_on_20250109.csv", EconomicIndicatorsKey(friday))
	assert.Equal(t, EconomicIndicatorsKey(friday), EconomicIndicatorsKey(friday))

	assert.Equal(t,
		"executive_orders/dt=2025-01-24/lang=en/executive_orders_through_14147_on_2025-01-23.json",
		ExecutiveOrdersKey(day, 14147, "2025-01-23"))
	assert.Equal(t, ExecutiveOrdersKey(day, 1, "x"), ExecutiveOrdersKey(day, 1, "x"))

	assert.Equal(t,
		"presidential_approvals/approval ratings loaded through 1-5-2025.csv",
		ApprovalsKey(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)))
}

func TestSourceFilesCarryPathHeader(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		first, _, _ := strings.Cut(string(data), "\n")
		assert.Equal(t, "// storage/"+name, first, name)
	}
}
