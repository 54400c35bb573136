// internal/app/system/csvtransfer/csvtransfer.go
//
// Package csvtransfer converts a metric collection, plus any other cached
// keys, to and from the CSV backup format:
//
//	=== METADATA DE MÉTRICAS ===
//	"Key","Nombre","Color"
//	"m1","Weight","#fff"
//
//	=== DATOS HISTÓRICOS ===
//	"Fecha","Weight"
//	"2024-01-01","70"
//
//	=== OTROS DATOS DE LOCALSTORAGE ===
//	"Key","Valor"
//	"theme","""dark"""
//
// Every field is quoted with internal quotes doubled, lines end in \n and
// a blank line separates sections. Data columns are matched to metrics by
// name on import.
package csvtransfer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dalemusser/stratatrack/internal/domain/models"
	"golang.org/x/text/unicode/norm"
)

// Section markers.
const (
	SectionMetadata = "=== METADATA DE MÉTRICAS ==="
	SectionData     = "=== DATOS HISTÓRICOS ==="
	SectionOthers   = "=== OTROS DATOS DE LOCALSTORAGE ==="
)

var (
	headerMetadata = []string{"Key", "Nombre", "Color"}
	headerOthers   = []string{"Key", "Valor"}
)

// ErrImportFormat matches every *ImportFormatError.
var ErrImportFormat = errors.New("invalid import file")

// ImportFormatError explains why a file was rejected.
type ImportFormatError struct {
	Reason string
}

func (e *ImportFormatError) Error() string {
	return "invalid import file: " + e.Reason
}

// Is lets errors.Is(err, ErrImportFormat) match.
func (e *ImportFormatError) Is(target error) bool {
	return target == ErrImportFormat
}

// Result is the outcome of Import.
type Result struct {
	Collection models.Collection
	// Others holds the other cached keys and their raw values.
	Others map[string]string
	// SkippedColumns lists data columns that matched no metric.
	SkippedColumns []string
}

/* -------------------------------------------------------------------------- */
/* Export                                                                      */
/* -------------------------------------------------------------------------- */

// Export renders c and others. Metrics are ordered by key; the data section
// is omitted when no metric has data and the others section when others is
// empty.
func Export(c models.Collection, others map[string]string) string {
	var b strings.Builder
	keys := c.Keys()

	b.WriteString(SectionMetadata + "\n")
	writeRow(&b, headerMetadata)
	for _, k := range keys {
		m := c[k]
		writeRow(&b, []string{k, displayName(k, m), displayColor(m)})
	}

	if dates := allDates(c); len(dates) > 0 {
		header := make([]string, 0, len(keys)+1)
		header = append(header, "Fecha")
		for _, k := range keys {
			header = append(header, displayName(k, c[k]))
		}
		b.WriteString("\n" + SectionData + "\n")
		writeRow(&b, header)

		byDate := make([]map[string]string, len(keys))
		for i, k := range keys {
			byDate[i] = map[string]string{}
			for _, dp := range c[k].Data {
				byDate[i][dp.Date] = models.FormatValue(dp.Value)
			}
		}
		for _, d := range dates {
			row := make([]string, 0, len(keys)+1)
			row = append(row, d)
			for i := range keys {
				row = append(row, byDate[i][d])
			}
			writeRow(&b, row)
		}
	}

	if len(others) > 0 {
		okeys := make([]string, 0, len(others))
		for k := range others {
			okeys = append(okeys, k)
		}
		sort.Strings(okeys)
		b.WriteString("\n" + SectionOthers + "\n")
		writeRow(&b, headerOthers)
		for _, k := range okeys {
			writeRow(&b, []string{k, others[k]})
		}
	}
	return b.String()
}

func displayName(key string, m models.Metric) string {
	if m.Name != "" {
		return m.Name
	}
	return key
}

func displayColor(m models.Metric) string {
	if m.Color != "" {
		return m.Color
	}
	return models.DefaultColor
}

func allDates(c models.Collection) []string {
	seen := map[string]bool{}
	var dates []string
	for _, m := range c {
		for _, dp := range m.Data {
			if !seen[dp.Date] {
				seen[dp.Date] = true
				dates = append(dates, dp.Date)
			}
		}
	}
	sort.SliceStable(dates, func(i, j int) bool { return models.LessDate(dates[i], dates[j]) })
	return dates
}

// writeRow quotes every field; encoding/csv only quotes when needed.
func writeRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

/* -------------------------------------------------------------------------- */
/* Import                                                                      */
/* -------------------------------------------------------------------------- */

// Import parses text produced by Export (or edited by hand or a
// spreadsheet). It fails with an *ImportFormatError when the metadata
// section is missing or has no rows.
func Import(text string) (*Result, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	sections := map[string][][]string{}
	section := ""
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ImportFormatError{Reason: err.Error()}
		}
		if marker := strings.TrimSpace(rec[0]); isMarker(marker) && blank(rec[1:]) {
			section = norm.NFC.String(marker)
			if _, ok := sections[section]; !ok {
				sections[section] = [][]string{}
			}
			continue
		}
		if section == "" || blank(rec) {
			continue
		}
		sections[section] = append(sections[section], rec)
	}

	meta, ok := sections[SectionMetadata]
	if !ok {
		return nil, &ImportFormatError{Reason: "metadata section not found"}
	}
	meta = dropHeader(meta, "Key")
	if len(meta) == 0 {
		return nil, &ImportFormatError{Reason: "metadata section has no rows"}
	}

	res := &Result{Collection: models.Collection{}, Others: map[string]string{}}
	// Metrics sharing a display name are kept in metadata order so repeated
	// data columns map onto them one by one.
	byName := map[string][]string{}
	for _, rec := range meta {
		key := strings.TrimSpace(rec[0])
		if key == "" {
			continue
		}
		m := models.Metric{Key: key, Name: key, Color: models.DefaultColor, Data: []models.DataPoint{}}
		if len(rec) > 1 && strings.TrimSpace(rec[1]) != "" {
			m.Name = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			m.Color = strings.TrimSpace(rec[2])
		}
		if _, dup := res.Collection[key]; !dup {
			name := norm.NFC.String(m.Name)
			byName[name] = append(byName[name], key)
		}
		res.Collection[key] = m
	}
	if len(res.Collection) == 0 {
		return nil, &ImportFormatError{Reason: "metadata section has no metric keys"}
	}

	if rows := sections[SectionData]; len(rows) > 0 {
		header := rows[0]
		rows = rows[1:]
		cols := make([]string, len(header))
		used := map[string]bool{}
		for i := 1; i < len(header); i++ {
			name := norm.NFC.String(strings.TrimSpace(header[i]))
			if name == "" {
				continue
			}
			var key string
			ok := false
			if keys := byName[name]; len(keys) > 0 {
				key, ok = keys[0], true
				byName[name] = keys[1:]
			} else if _, isKey := res.Collection[name]; isKey && !used[name] {
				key, ok = name, true
			}
			if ok {
				used[key] = true
			}
			if !ok {
				res.SkippedColumns = append(res.SkippedColumns, header[i])
				continue
			}
			cols[i] = key
		}
		for _, rec := range rows {
			date := strings.TrimSpace(rec[0])
			if date == "" {
				continue
			}
			for i := 1; i < len(rec) && i < len(cols); i++ {
				if cols[i] == "" || strings.TrimSpace(rec[i]) == "" {
					continue
				}
				m := res.Collection[cols[i]]
				m.Data = upsert(m.Data, date, coerce(rec[i]))
				res.Collection[cols[i]] = m
			}
		}
		for k, m := range res.Collection {
			sort.SliceStable(m.Data, func(i, j int) bool { return models.LessDate(m.Data[i].Date, m.Data[j].Date) })
			res.Collection[k] = m
		}
	}

	for _, rec := range dropHeader(sections[SectionOthers], "Key") {
		key := strings.TrimSpace(rec[0])
		if key == "" || models.Reserved(key) {
			continue
		}
		val := ""
		if len(rec) > 1 {
			val = rec[1]
		}
		res.Others[key] = val
	}
	return res, nil
}

func isMarker(s string) bool {
	return strings.HasPrefix(s, "===") && strings.HasSuffix(s, "===") && len(s) > 6
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func dropHeader(rows [][]string, first string) [][]string {
	if len(rows) > 0 && strings.EqualFold(strings.TrimSpace(rows[0][0]), first) {
		return rows[1:]
	}
	return rows
}

func upsert(data []models.DataPoint, date string, v any) []models.DataPoint {
	for i := range data {
		if data[i].Date == date {
			data[i].Value = v
			return data
		}
	}
	return append(data, models.DataPoint{Date: date, Value: v})
}

// coerce turns numeric-looking text into a float64.
func coerce(s string) any {
	t := strings.TrimSpace(s)
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	return f
}

// ExportFilename is the suggested download name for an export made on date.
func ExportFilename(date string) string {
	return fmt.Sprintf("tracking-backup-%s.csv", date)
}
