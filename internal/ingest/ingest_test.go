package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadFileCSV(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "export.csv", []byte("incident_id,entity\nINC1,payments\nINC2,trading\n"))

	header, rows, err := ReadFile(path, FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"incident_id", "entity"}, header)
	assert.Equal(t, [][]string{{"INC1", "payments"}, {"INC2", "trading"}}, rows)
}

func TestReadFileCSVDelimiter(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "export.csv", []byte("a;b\n1;2\n"))

	header, rows, err := ReadFile(path, FileOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, header)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)
}

func TestReadFileCSVCharset(t *testing.T) {
	t.Parallel()

	// "entité" in latin-1: the é is a single 0xE9 byte.
	raw := append([]byte("entit"), 0xE9)
	raw = append(raw, []byte("\nvalue\n")...)
	path := writeTemp(t, "latin.csv", raw)

	header, _, err := ReadFile(path, FileOptions{Charset: "iso-8859-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"entité"}, header)

	_, _, err = ReadFile(path, FileOptions{Charset: "no-such-charset"})
	assert.ErrorContains(t, err, "unsupported charset")
}

func TestReadFileXLSX(t *testing.T) {
	t.Parallel()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("export")
	require.NoError(t, err)
	for _, row := range [][]string{{"incident_id", "entity"}, {"INC9", "core"}} {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.Save(path))

	header, rows, err := ReadFile(path, FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"incident_id", "entity"}, header)
	assert.Equal(t, [][]string{{"INC9", "core"}}, rows)

	_, _, err = ReadFile(path, FileOptions{SheetName: "absent"})
	assert.ErrorContains(t, err, `sheet "absent" not found`)

	_, _, err = ReadFile(path, FileOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "sheet index 3 out of range")
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()

	_, _, err := ReadFile(filepath.Join(t.TempDir(), "absent.csv"), FileOptions{})
	assert.ErrorContains(t, err, "open export")
}

func cleanHeader() []string {
	return []string{
		"Incident ID", "Change Attached", "Start Time", "End Time",
		"App Level", "Entity", "Application", "Crisis Level",
		"Non IT Issue", "Problem Statement", "Corrective Action",
	}
}

func goodRow(id string) []string {
	return []string{
		id, "Yes", "2024-03-13 09:00:00", "2024-03-13 11:30:00",
		"L1", "payments", "ledger", "P4",
		"No", "db down", "failover",
	}
}

func TestCleanMapsColumns(t *testing.T) {
	t.Parallel()

	res, err := Clean(cleanHeader(), [][]string{goodRow("INC1")}, CleanOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	r := res.Records[0]
	assert.Equal(t, "INC1", r.IncidentID)
	assert.Equal(t, "Yes", r.ChangeAttached)
	assert.Equal(t, "L1", r.AppLevel)
	assert.Equal(t, "payments", r.Entity)
	assert.Equal(t, "ledger", r.Application)
	assert.Equal(t, "P4", r.CrisisLevel)
	assert.Equal(t, "No", r.NonITIssue)
	assert.Equal(t, "db down", r.ProblemStatement)
	assert.Equal(t, "failover", r.CorrectiveAction)
	assert.Equal(t, 2.5, r.Duration().Hours())
	assert.True(t, r.IsOutage())
}

func TestCleanDrops(t *testing.T) {
	t.Parallel()

	badTime := goodRow("INC2")
	badTime[2] = "not a date"
	reversed := goodRow("INC3")
	reversed[2], reversed[3] = reversed[3], reversed[2]
	short := goodRow("INC4")[:4]

	res, err := Clean(cleanHeader(), [][]string{goodRow("INC1"), badTime, reversed, short}, CleanOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalRows)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, 1, res.DroppedBadTime)
	assert.Equal(t, 1, res.DroppedOrder)
	assert.Equal(t, "INC1", res.Records[0].IncidentID)
	assert.Equal(t, "INC4", res.Records[1].IncidentID)
}

func TestCleanCustomLayout(t *testing.T) {
	t.Parallel()

	row := goodRow("INC1")
	row[2] = "13.03.2024 09:00"
	row[3] = "13.03.2024 10:00"

	_, err := Clean(cleanHeader(), [][]string{row}, CleanOptions{})
	assert.ErrorIs(t, err, ErrNoRecords)

	res, err := Clean(cleanHeader(), [][]string{row}, CleanOptions{TimeLayouts: []string{"02.01.2006 15:04"}})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 13, res.Records[0].Start.Day())
}

func TestCleanMissingColumns(t *testing.T) {
	t.Parallel()

	_, err := Clean([]string{"incident_id", "entity"}, [][]string{{"INC1", "x"}}, CleanOptions{})
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.ErrorContains(t, err, "start_time")
	assert.ErrorContains(t, err, "crisis_level")
}

func TestCleanNoUsableRecords(t *testing.T) {
	t.Parallel()

	bad := goodRow("INC1")
	bad[3] = "garbage"
	_, err := Clean(cleanHeader(), [][]string{bad}, CleanOptions{})
	require.ErrorIs(t, err, ErrNoRecords)
	assert.ErrorContains(t, err, "1 bad timestamps")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	csv := "incident_id,change_attached,start_time,end_time,app_level,entity,application,crisis_level,non_it_issue,problem_statement,corrective_action\n" +
		"INC1,No,2024-03-13 09:00:00,2024-03-13 10:00:00,L2,core,gw,P1,No,slow,restart\n"
	path := writeTemp(t, "export.csv", []byte(csv))

	res, err := Load(path, FileOptions{}, CleanOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "INC1", res.Records[0].IncidentID)
	assert.False(t, res.Records[0].IsOutage())
}
