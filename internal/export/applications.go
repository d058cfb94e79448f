package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"visakal-form/internal/domain"
)

const sheetName = "Applications"

// ApplicationsHeader export column titles
var ApplicationsHeader = []string{
	"Request ID",
	"Country",
	"Status",
	"Beneficiaries",
	"Submitted At",
	"Created At",
	"Client Email",
}

var columnWidths = []float64{38, 20, 20, 14, 24, 24, 28}

// Applications renders the user's applications as an .xlsx workbook. The status cell is
// filled with the status badge colour.
func Applications(apps []domain.Application, lang domain.Language) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range ApplicationsHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	for col, w := range columnWidths {
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(sheetName, name, name, w); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// one fill style per distinct status colour
	statusStyles := map[string]int{}
	statusStyle := func(status string) (int, error) {
		color := domain.StatusColor(status)
		if id, ok := statusStyles[color]; ok {
			return id, nil
		}
		id, err := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return 0, err
		}
		statusStyles[color] = id
		return id, nil
	}

	for i, app := range apps {
		row := i + 2
		values := []any{
			app.ID,
			countryName(app, lang),
			app.Status,
			len(app.Beneficiaries),
			deref(app.SubmittedAt),
			app.CreatedAt,
			deref(app.ClientEmail),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
		styleID, err := statusStyle(app.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to create status style: %w", err)
		}
		cell, _ := excelize.CoordinatesToCellName(3, row)
		if err := f.SetCellStyle(sheetName, cell, cell, styleID); err != nil {
			return nil, fmt.Errorf("failed to set status style: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func countryName(app domain.Application, lang domain.Language) string {
	if name := app.CountryName.Get(lang); name != "" {
		return name
	}
	if app.CountryID == "" {
		return ""
	}
	return strings.ToUpper(app.CountryID[:1]) + app.CountryID[1:]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
