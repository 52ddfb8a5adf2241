package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// readWorkbook decodes every worksheet of an XLSX file in workbook order.
// The first row of each sheet is its header.
func readWorkbook(name string, data []byte) ([]*table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, formatErr("%s: open xlsx: %v", name, err)
	}
	workbookXML := readZipFile(zr, "xl/workbook.xml")
	if workbookXML == nil {
		return nil, formatErr("%s: missing xl/workbook.xml", name)
	}
	sheets := parseWorkbook(workbookXML)
	rels := parseRelationships(readZipFile(zr, "xl/_rels/workbook.xml.rels"))
	shared := parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml"))

	out := make([]*table, 0, len(sheets))
	for i, s := range sheets {
		target := ""
		if rel, ok := rels[s.RID]; ok {
			target = normalizeRelPath(rel)
		}
		if target == "" {
			target = fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1)
		}
		sheetXML := readZipFile(zr, target)
		if sheetXML == nil {
			return nil, formatErr("%s: sheet %q not found at %s", name, s.Name, target)
		}
		out = append(out, readSheet(s.Name, sheetXML, shared))
	}
	return out, nil
}

func readSheet(name string, data []byte, shared []string) *table {
	t := &table{name: name}
	rr := newSheetRowReader(data, shared)
	first := true
	for {
		row, ok := rr.Next()
		if !ok {
			break
		}
		if first {
			t.header = cleanHeader(row)
			first = false
			continue
		}
		t.rows = append(t.rows, row)
	}
	return t
}

type wbSheet struct {
	Name    string
	SheetID int
	RID     string
}

// parseWorkbook extracts sheet entries with names and relationship ids, in
// declaration order (which is the tab order users see).
func parseWorkbook(data []byte) []wbSheet {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sheets []wbSheet
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s wbSheet
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.Name = a.Value
			case "sheetId":
				s.SheetID = atoiSafe(a.Value)
			case "id":
				s.RID = a.Value // in r: namespace
			}
		}
		sheets = append(sheets, s)
	}
	return sheets
}

// parseRelationships returns map[r:id]Target.
func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	}
	return out
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		return b
	}
	return nil
}

// parseSharedStrings collects <si> entries, concatenating rich-text runs.
func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT bool
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
	return out
}

// sheetRowReader streams rows out of a worksheet, placing each cell by its
// column reference so gaps stay aligned with the header.
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
	cells  map[int]string
	maxCol int
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

func (r *sheetRowReader) Next() ([]string, bool) {
	inRow := false
	next := 0
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				inRow = true
				r.cells = map[int]string{}
				r.maxCol = 0
				next = 0
			}
			if inRow && se.Name.Local == "c" {
				var ref, typ string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						typ = a.Value
					}
				}
				col := next
				if ref != "" {
					col = colIndexFromRef(ref)
				}
				next = col + 1
				if next > r.maxCol {
					r.maxCol = next
				}
				r.cells[col] = r.readCellValue(typ)
			}
		case xml.EndElement:
			if se.Name.Local == "row" && inRow {
				row := make([]string, r.maxCol)
				cols := make([]int, 0, len(r.cells))
				for c := range r.cells {
					cols = append(cols, c)
				}
				sort.Ints(cols)
				for _, c := range cols {
					if c >= 0 && c < len(row) {
						row[c] = r.cells[c]
					}
				}
				return row, true
			}
		}
	}
}

// readCellValue consumes tokens up to </c>, resolving shared strings.
func (r *sheetRowReader) readCellValue(typ string) string {
	var val strings.Builder
	inText := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return val.String()
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				inText = true
			}
		case xml.CharData:
			if inText {
				val.Write(se)
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "v", "t":
				inText = false
			case "c":
				if typ == "s" {
					idx := atoiSafe(val.String())
					if idx >= 0 && idx < len(r.shared) {
						return r.shared[idx]
					}
					return ""
				}
				return val.String()
			}
		}
	}
}

// colIndexFromRef converts refs like "C12" to a 0-based column index.
func colIndexFromRef(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship Target paths to ZIP entry names.
// Targets may be absolute ("/xl/worksheets/sheet1.xml") or relative to xl/.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
