package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ecotrade_flows/models"
)

// ParseListing extracts body rows from the outer HTML of a listing table.
// The first cell is the display name, the second the display date. Header
// rows without td cells are skipped.
func ParseListing(tableHTML string) ([]models.ListingRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil
	}

	var rows []models.ListingRow
	table.ChildrenFiltered("tbody").ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}

		row := models.ListingRow{
			Index: tr.Index() + 1,
			Name:  cleanText(cells.Eq(0).Text()),
		}
		if cells.Length() > 1 {
			row.DateText = cleanText(cells.Eq(1).Text())
		}

		tr.Find("input[type='checkbox']").EachWithBreak(func(_ int, box *goquery.Selection) bool {
			if _, disabled := box.Attr("disabled"); !disabled {
				row.Selectable = true
				return false
			}
			return true
		})

		rows = append(rows, row)
	})

	return rows, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
