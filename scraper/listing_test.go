package scraper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err, "fixture %s", name)
	return string(data)
}

func TestParseListing_AvailableFlows(t *testing.T) {
	rows, err := ParseListing(loadFixture(t, "available_flows.html"))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, "STANDARD_SII", rows[0].Name)
	assert.True(t, rows[0].Selectable)

	assert.Equal(t, "Curve orarie ( flussi PDO / RFO)", rows[1].Name)
	assert.Equal(t, "12", rows[1].DateText)

	assert.Equal(t, 4, rows[3].Index)
	assert.False(t, rows[3].Selectable, "disabled checkbox")
}

func TestParseListing_SkipsHeaderRowInBody(t *testing.T) {
	rows, err := ParseListing(loadFixture(t, "downloaded_files.html"))
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, 2, rows[0].Index, "index counts the header row sibling")
	assert.Equal(t, "IT001E_PDO2G_20250512.xml", rows[0].Name)
	assert.Equal(t, "12/05/2025 08:14:02", rows[0].DateText)

	day, err := rows[0].Date()
	require.NoError(t, err)
	assert.Equal(t, "2025-05-12", day.Format("2006-01-02"))

	_, err = rows[3].Date()
	assert.Error(t, err)
}

func TestParseListing_NoTable(t *testing.T) {
	rows, err := ParseListing("<div>Nessun file presente</div>")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRowCheckboxSelector(t *testing.T) {
	assert.Equal(t, "tbody > tr:nth-child(3) input[type='checkbox']", rowCheckboxSelector(3))
}
