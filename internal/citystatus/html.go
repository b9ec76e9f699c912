package citystatus

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LoadHTMLTable builds a Table from an HTML reference page, e.g. a saved export
// of a geo-reference register. Each data row under selector must hold at least
// three cells: city, status code, status label. Rows whose second cell is not
// an integer (headers, notes) are skipped.
func LoadHTMLTable(r io.Reader, selector string) (*Table, error) {
	if strings.TrimSpace(selector) == "" {
		selector = "table"
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("citystatus: parse html: %w", err)
	}

	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("citystatus: selector %q matched nothing", selector)
	}

	var entries []Entry
	sel.First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 3 {
			return
		}
		code, err := strconv.Atoi(strings.TrimSpace(cells.Eq(1).Text()))
		if err != nil {
			return
		}
		entries = append(entries, Entry{
			City:  strings.TrimSpace(cells.Eq(0).Text()),
			Code:  code,
			Label: strings.TrimSpace(cells.Eq(2).Text()),
		})
	})

	if len(entries) == 0 {
		return nil, fmt.Errorf("citystatus: no rows found under %q", selector)
	}
	return NewTable(entries)
}

// LoadHTMLFile reads an HTML reference table from path.
func LoadHTMLFile(path, selector string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("citystatus: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadHTMLTable(f, selector)
}
