package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadCSV(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		wantRows int
		wantCols int
		wantErr  string
	}{
		{
			name:     "happy path 3 rows 3 columns",
			csv:      "date,r1m_usd,r3m_usd\n2025-01-31,0.01,0.03\n2025-02-28,0.02,0.01\n2025-03-31,0.015,0.02\n",
			wantRows: 3,
			wantCols: 3,
		},
		{
			name:     "single row",
			csv:      "code,change\n600519,1.2\n",
			wantRows: 1,
			wantCols: 2,
		},
		{
			name:     "empty CSV headers only",
			csv:      "code,change\n",
			wantRows: 0,
		},
		{
			name:    "mismatched column count",
			csv:     "code,change\n600519,1.2\nbad\n",
			wantErr: "wrong number of fields",
		},
		{
			name:    "completely empty",
			csv:     "",
			wantErr: "no header row",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeCSV(t, dir, "test.csv", tt.csv)

			rows, err := LoadCSV(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Len(t, rows, tt.wantRows)
			if tt.wantRows > 0 {
				assert.Len(t, rows[0], tt.wantCols)
			}
		})
	}
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: open")
}

func TestReadCSV_TrimsHeaders(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("\ufeffcode , change\n600519, 1.5\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "600519", rows[0]["code"])
	assert.Equal(t, "1.5", rows[0]["change"])
}

func TestLoadCSVRange(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "r.csv", "v\n1\n2\n3\n4\n")

	rows, err := LoadCSVRange(path, 2, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0]["v"])
	assert.Equal(t, "3", rows[1]["v"])

	rows, err = LoadCSVRange(path, 3, 100)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = LoadCSVRange(path, 10, 12)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = LoadCSVRange(path, 0, 2)
	require.Error(t, err)
	_, err = LoadCSVRange(path, 3, 2)
	require.Error(t, err)
}
