// Package ingest reads structured supplier price lists (XLSX, CSV)
// into typed product fields. Structured sources skip the LLM entirely:
// a spreadsheet cell is authoritative, so fields arrive at full
// confidence.
package ingest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/similarity"
)

// structuredConfidence is assigned to every field read from a
// spreadsheet cell.
const structuredConfidence = 1.0

// Row is one product parsed out of a price list.
type Row struct {
	Line       int // 1-based source row number
	Fields     model.Fields
	Confidence model.Confidence
}

// Result is the outcome of parsing one price list.
type Result struct {
	Rows    []Row
	Skipped []int // row numbers with no usable field
}

// headerAliases maps normalized column headers to field keys. Supplier
// lists are mostly French; the aliases cover the spellings seen so far.
var headerAliases = map[string]model.FieldKey{
	"code":            model.FieldDefaultCode,
	"ref":             model.FieldDefaultCode,
	"reference":       model.FieldDefaultCode,
	"code article":    model.FieldDefaultCode,
	"barcode":         model.FieldBarcode,
	"code barre":      model.FieldBarcode,
	"gencod":          model.FieldBarcode,
	"ean":             model.FieldEAN,
	"ean13":           model.FieldEAN,
	"name":            model.FieldName,
	"designation":     model.FieldName,
	"libelle":         model.FieldName,
	"category":        model.FieldCategory,
	"categorie":       model.FieldCategory,
	"famille":         model.FieldCategory,
	"origine":         model.FieldCountryOfOrigin,
	"pays d origine":  model.FieldCountryOfOrigin,
	"marque":          model.FieldManufacturer,
	"fabricant":       model.FieldManufacturer,
	"manufacturer":    model.FieldManufacturer,
	"ref fabricant":   model.FieldManufacturerRef,
	"ref constructeur": model.FieldManufacturerRef,
	"description":     model.FieldShortDescription,
	"hs code":         model.FieldHSCode,
	"code douanier":   model.FieldHSCode,
	"longueur":        model.FieldLengthMM,
	"largeur":         model.FieldWidthMM,
	"hauteur":         model.FieldHeightMM,
	"poids":           model.FieldWeightKG,
	"weight":          model.FieldWeightKG,
	"prix":            model.FieldListPrice,
	"tarif":           model.FieldListPrice,
	"price":           model.FieldListPrice,
}

// ParseFile reads a price list by extension. Supported: .xlsx, .csv.
func ParseFile(path string) (*Result, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, eris.Errorf("ingest: unsupported price list format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return Parse(rows)
}

// Parse maps the header row onto the field schema and converts each
// data row. Rows with no recognizable field are reported, not fatal.
func Parse(rows [][]string) (*Result, error) {
	if len(rows) == 0 {
		return nil, eris.New("ingest: empty price list")
	}

	columns := mapHeader(rows[0])
	if len(columns) == 0 {
		return nil, eris.New("ingest: no recognizable column headers")
	}

	result := &Result{}
	for i, cells := range rows[1:] {
		line := i + 2
		row, ok := parseRow(cells, columns)
		if !ok {
			result.Skipped = append(result.Skipped, line)
			continue
		}
		row.Line = line
		result.Rows = append(result.Rows, row)
	}

	zap.L().Info("ingest: price list parsed",
		zap.Int("rows", len(result.Rows)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// mapHeader resolves each column index to a field key.
func mapHeader(header []string) map[int]model.FieldKey {
	columns := make(map[int]model.FieldKey)
	for i, h := range header {
		key, ok := headerAliases[similarity.Normalize(h)]
		if !ok {
			continue
		}
		columns[i] = key
	}
	return columns
}

func parseRow(cells []string, columns map[int]model.FieldKey) (Row, bool) {
	row := Row{Confidence: make(model.Confidence)}
	found := false

	for i, key := range columns {
		if i >= len(cells) {
			continue
		}
		value := strings.TrimSpace(cells[i])
		if value == "" {
			continue
		}

		a, _ := model.AccessorFor(key)
		switch a.Kind {
		case model.KindString:
			v := value
			*a.String(&row.Fields) = &v
		case model.KindFloat:
			f, err := parseNumber(value)
			if err != nil {
				continue
			}
			*a.Float(&row.Fields) = &f
		}
		row.Confidence[key] = structuredConfidence
		found = true
	}
	return row, found
}

// parseNumber accepts both decimal comma and decimal point.
func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	s = strings.TrimSuffix(s, "€")
	s = strings.TrimSpace(s)
	return strconv.ParseFloat(s, 64)
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: %s has no sheets", path)
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = detectDelimiter(path)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	return rows, nil
}

// detectDelimiter sniffs the first line for a semicolon, the usual
// delimiter in French-locale exports.
func detectDelimiter(path string) rune {
	data, err := os.ReadFile(path)
	if err != nil {
		return ','
	}
	firstLine, _, _ := strings.Cut(string(data), "\n")
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		return ';'
	}
	return ','
}
