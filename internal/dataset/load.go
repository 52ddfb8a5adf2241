package dataset

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Standard quantitative result columns (matched case-insensitively).
var resultColumns = map[string]bool{
	"question":            true,
	"disaggregation":      true,
	"answer_option":       true,
	"answer_option_label": true,
	"indicator":           true,
	"value":               true,
	"sample_size":         true,
	"standard_error":      true,
}

// DecodeQuestionnaire reads a delimited schema file. An empty file yields an
// empty (degraded but valid) questionnaire.
func DecodeQuestionnaire(name string, r io.Reader) (Questionnaire, error) {
	t, err := readDelimited(name, r)
	if err != nil {
		return Questionnaire{}, err
	}
	q := Questionnaire{Columns: t.header}
	for _, rec := range t.records() {
		q.Rows = append(q.Rows, QuestionnaireRow{Cells: rec})
	}
	return q, nil
}

// Results carries the decoded result datasets plus degraded-load notes.
type Results struct {
	Quantitative []ResultRow
	Qualitative  []QualitativeRow
	Warnings     []string
}

// DecodeResults reads a results file. XLSX workbooks provide quantitative
// rows on the first sheet and qualitative rows on the optional second one;
// delimited text provides quantitative rows only.
func DecodeResults(name string, data []byte) (Results, error) {
	var res Results
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".xlsx" && ext != ".xlsm" {
		t, err := readDelimited(name, bytes.NewReader(data))
		if err != nil {
			return res, err
		}
		rows, err := decodeQuantitative(t)
		if err != nil {
			return res, err
		}
		res.Quantitative = rows
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: delimited results carry no qualitative sheet; qualitative analysis is empty", name))
		return res, nil
	}

	sheets, err := readWorkbook(name, data)
	if err != nil {
		return res, err
	}
	if len(sheets) == 0 {
		return res, formatErr("%s: workbook has no sheets", name)
	}
	rows, err := decodeQuantitative(sheets[0])
	if err != nil {
		return res, err
	}
	res.Quantitative = rows
	if len(sheets) < 2 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: no qualitative sheet; qualitative analysis is empty", name))
		return res, nil
	}
	qual, ok := decodeQualitative(sheets[1])
	if !ok {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: sheet %q has no question column; qualitative analysis is empty", name, sheets[1].name))
		return res, nil
	}
	res.Qualitative = qual
	return res, nil
}

func decodeQuantitative(t *table) ([]ResultRow, error) {
	if len(t.header) == 0 {
		return nil, nil
	}
	idx := headerIndex(t.header)
	for _, req := range []string{"question", "disaggregation", "value"} {
		if _, ok := idx[req]; !ok {
			return nil, formatErr("%s: missing required column %q", t.name, req)
		}
	}
	labelCol := idx["answer_option_label"]
	if labelCol == "" {
		for _, h := range t.header {
			if strings.Contains(strings.ToLower(h), "label::english") {
				labelCol = h
				break
			}
		}
	}
	var out []ResultRow
	for _, rec := range t.records() {
		row := ResultRow{
			Question:       rec[idx["question"]],
			Disaggregation: rec[idx["disaggregation"]],
			AnswerOption:   rec[idx["answer_option"]],
			Indicator:      rec[idx["indicator"]],
			Value:          rec[idx["value"]],
			SampleSize:     rec[idx["sample_size"]],
			StdError:       rec[idx["standard_error"]],
			Groups:         map[string]string{},
		}
		if labelCol != "" {
			row.AnswerLabel = rec[labelCol]
		}
		for _, h := range t.header {
			if h == "" || h == labelCol || resultColumns[strings.ToLower(h)] {
				continue
			}
			row.Groups[h] = rec[h]
		}
		if row.Question == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func decodeQualitative(t *table) ([]QualitativeRow, bool) {
	idx := headerIndex(t.header)
	if _, ok := idx["question"]; !ok {
		return nil, false
	}
	var out []QualitativeRow
	for _, rec := range t.records() {
		row := QualitativeRow{
			Question:          rec[idx["question"]],
			Theme:             rec[idx["theme"]],
			Frequency:         rec[idx["frequency"]],
			TotalRespondents:  rec[idx["total_respondents"]],
			ProportionPercent: rec[idx["proportion_percent"]],
			Summary:           rec[idx["summary"]],
			Quotes:            rec[idx["quotes"]],
		}
		if row.Question == "" {
			continue
		}
		out = append(out, row)
	}
	return out, true
}

// Build assembles a store from decoded parts.
func Build(q Questionnaire, res Results) *Store {
	s := NewStore(q, res.Quantitative, res.Qualitative)
	for _, w := range res.Warnings {
		s.warn(w)
	}
	return s
}

// LoadFiles decodes a questionnaire file and a results file from disk.
func LoadFiles(questionnairePath, resultsPath string) (*Store, error) {
	qf, err := os.Open(questionnairePath)
	if err != nil {
		return nil, fmt.Errorf("open questionnaire: %w", err)
	}
	defer qf.Close()
	q, err := DecodeQuestionnaire(filepath.Base(questionnairePath), qf)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resultsPath)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	res, err := DecodeResults(filepath.Base(resultsPath), data)
	if err != nil {
		return nil, err
	}
	return Build(q, res), nil
}
