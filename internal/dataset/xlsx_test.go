package dataset

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sheetFixture struct {
	name string
	rows [][]string
}

// buildXLSX writes a minimal workbook. Header cells use shared strings and
// body cells use inline strings so both lookup paths are exercised. Sheet
// relationship targets are absolute to cover path normalization.
func buildXLSX(t *testing.T, sheets ...sheetFixture) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, body string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}

	var shared []string
	sharedIdx := map[string]int{}
	var wb, rels strings.Builder
	wb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>`)
	rels.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i, s := range sheets {
		fmt.Fprintf(&wb, `<sheet name="%s" sheetId="%d" r:id="rId%d"/>`, s.name, i+1, i+1)
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="worksheet" Target="/xl/worksheets/sheet%d.xml"/>`, i+1, i+1)

		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
		for r, row := range s.rows {
			fmt.Fprintf(&sb, `<row r="%d">`, r+1)
			for c, v := range row {
				if v == "" {
					continue
				}
				ref := fmt.Sprintf("%c%d", 'A'+c, r+1)
				if r == 0 {
					idx, ok := sharedIdx[v]
					if !ok {
						idx = len(shared)
						shared = append(shared, v)
						sharedIdx[v] = idx
					}
					fmt.Fprintf(&sb, `<c r="%s" t="s"><v>%d</v></c>`, ref, idx)
					continue
				}
				fmt.Fprintf(&sb, `<c r="%s" t="inlineStr"><is><t>%s</t></is></c>`, ref, xmlEscape(v))
			}
			sb.WriteString(`</row>`)
		}
		sb.WriteString(`</sheetData></worksheet>`)
		write(fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1), sb.String())
	}
	wb.WriteString(`</sheets></workbook>`)
	rels.WriteString(`</Relationships>`)
	write("xl/workbook.xml", wb.String())
	write("xl/_rels/workbook.xml.rels", rels.String())

	var ss strings.Builder
	ss.WriteString(`<?xml version="1.0" encoding="UTF-8"?><sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">`)
	for _, v := range shared {
		fmt.Fprintf(&ss, `<si><t>%s</t></si>`, xmlEscape(v))
	}
	ss.WriteString(`</sst>`)
	write("xl/sharedStrings.xml", ss.String())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func TestReadWorkbookSheetsInOrder(t *testing.T) {
	data := buildXLSX(t,
		sheetFixture{name: "Quant", rows: [][]string{{"question", "value"}, {"q1", "10"}}},
		sheetFixture{name: "Qual", rows: [][]string{{"question", "theme"}, {"q2", "Cost"}}},
	)
	sheets, err := readWorkbook("r.xlsx", data)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "Quant", sheets[0].name)
	assert.Equal(t, []string{"question", "value"}, sheets[0].header)
	assert.Equal(t, [][]string{{"q1", "10"}}, sheets[0].rows)
	assert.Equal(t, "Qual", sheets[1].name)
}

func TestSheetRowReaderKeepsGapsAligned(t *testing.T) {
	data := []byte(`<worksheet><sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>a</t></is></c><c r="C1"><v>3</v></c></row></sheetData></worksheet>`)
	rr := newSheetRowReader(data, nil)
	row, ok := rr.Next()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "", "3"}, row)
	_, ok = rr.Next()
	assert.False(t, ok)
}

func TestReadWorkbookRejectsGarbage(t *testing.T) {
	_, err := readWorkbook("bad.xlsx", []byte("not a zip"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestNormalizeRelPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeRelPath(tt.input), tt.input)
	}
}

func TestColIndexFromRef(t *testing.T) {
	assert.Equal(t, 0, colIndexFromRef("A1"))
	assert.Equal(t, 2, colIndexFromRef("C12"))
	assert.Equal(t, 26, colIndexFromRef("AA3"))
}
