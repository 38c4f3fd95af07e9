// Package export writes validated catalog records to XLSX workbooks
// for review and ERP import.
package export

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// headerRow lists the product sheet columns: the full field schema in
// declaration order, then the computed columns.
var computedColumns = []string{"status", "avg_confidence", "image_count", "main_image"}

// Write produces a workbook with a product sheet and a summary sheet
// at the given path.
func Write(path string, products []model.ProductRecord) error {
	wb := xlsx.NewFile()

	if err := writeProductSheet(wb, products); err != nil {
		return err
	}
	if err := writeSummarySheet(wb, products); err != nil {
		return err
	}

	if err := wb.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: workbook written",
		zap.String("path", path),
		zap.Int("products", len(products)),
	)
	return nil
}

func writeProductSheet(wb *xlsx.File, products []model.ProductRecord) error {
	sheet, err := wb.AddSheet("Products")
	if err != nil {
		return eris.Wrap(err, "export: add product sheet")
	}

	header := sheet.AddRow()
	for _, a := range model.Schema() {
		header.AddCell().SetString(string(a.Key))
	}
	for _, col := range computedColumns {
		header.AddCell().SetString(col)
	}

	for i := range products {
		p := &products[i]
		row := sheet.AddRow()

		for _, a := range model.Schema() {
			cell := row.AddCell()
			switch v := a.Value(&p.Fields).(type) {
			case string:
				cell.SetString(v)
			case float64:
				cell.SetFloat(v)
			default:
				cell.SetString("")
			}
		}

		row.AddCell().SetString(string(p.Status))
		row.AddCell().SetFloat(p.AverageConfidence())
		row.AddCell().SetInt(len(p.Images))
		if main := p.MainImage(); main != nil {
			row.AddCell().SetString(main.Filename)
		} else {
			row.AddCell().SetString("")
		}
	}
	return nil
}

func writeSummarySheet(wb *xlsx.File, products []model.ProductRecord) error {
	sheet, err := wb.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	counts := make(map[model.Status]int)
	withImages := 0
	var confSum float64
	for i := range products {
		counts[products[i].Status]++
		if len(products[i].Images) > 0 {
			withImages++
		}
		confSum += products[i].AverageConfidence()
	}

	addKV := func(k, v string) {
		row := sheet.AddRow()
		row.AddCell().SetString(k)
		row.AddCell().SetString(v)
	}

	addKV("total_products", fmt.Sprintf("%d", len(products)))
	addKV("with_images", fmt.Sprintf("%d", withImages))
	if len(products) > 0 {
		addKV("mean_confidence", fmt.Sprintf("%.3f", confSum/float64(len(products))))
	}

	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		addKV("status_"+s, fmt.Sprintf("%d", counts[model.Status(s)]))
	}
	return nil
}
