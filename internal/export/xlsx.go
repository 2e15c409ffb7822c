// Package export writes the masked lead grid to spreadsheet files.
package export

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgate/internal/view"
)

// SheetName is the worksheet holding the grid.
const SheetName = "Leads"

// Header is the first row of the sheet.
var Header = []string{"ID", "Company", "Email", "Phone", "Score", "Property Value", "City", "Unlocked"}

// Row flattens a card into sheet cells. Masking has already been applied
// by view.NewCard.
func Row(c view.Card) []string {
	return []string{
		c.ID,
		c.Company,
		c.Email,
		c.Phone,
		strconv.Itoa(c.Score),
		c.PropertyValue,
		c.City,
		yesNo(c.Entitled),
	}
}

// Build lays the cards out in a new workbook.
func Build(ctx context.Context, cards []view.Card) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add sheet")
	}

	addRow(sheet, Header)
	for _, c := range cards {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		row := sheet.AddRow()
		for j, v := range Row(c) {
			cell := row.AddCell()
			if j == 4 {
				cell.SetInt(c.Score)
				continue
			}
			cell.SetString(v)
		}
	}
	return f, nil
}

// WriteFile saves the cards to path.
func WriteFile(ctx context.Context, path string, cards []view.Card) error {
	f, err := Build(ctx, cards)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

// Write streams the workbook to w.
func Write(ctx context.Context, w io.Writer, cards []view.Card) error {
	f, err := Build(ctx, cards)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "xlsx: write")
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
