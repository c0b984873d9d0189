// scraper/table.go
package scraper

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jszwec/csvutil"

	"github.com/gewnthar/civicpulse/models"
)

// ExtractFirstTable returns the cell text of every row of the first <table>
// in the document. Rows shorter than the first row are padded, longer ones
// truncated, so every row has the first row's width.
func ExtractFirstTable(r io.Reader) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ParseError{What: "HTML", Err: err}
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// nested tables would otherwise contribute their rows twice
		if tr.Closest("table").Get(0) != table.Get(0) {
			return
		}
		var cells []string
		tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(cell.Text()), " "))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return nil, ErrNoTable
	}

	width := len(rows[0])
	for i, row := range rows {
		switch {
		case len(row) < width:
			rows[i] = append(row, make([]string, width-len(row))...)
		case len(row) > width:
			rows[i] = row[:width]
		}
	}
	return rows, nil
}

const startDateHeader = "Start Date"

// TableToRatings promotes the first row to headers and decodes the remaining
// rows into ApprovalRatings by header name, tagging each with president.
// Columns without a field are kept in Extra. A table without a Start Date
// column is a parse error.
func TableToRatings(rows [][]string, president string) ([]models.ApprovalRating, error) {
	if len(rows) == 0 {
		return nil, ErrNoTable
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, &ParseError{What: "approval table", Err: err}
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(&buf))
	if err != nil {
		if err == io.EOF {
			return nil, ErrNoTable
		}
		return nil, &ParseError{What: "approval table header", Err: err}
	}
	header := dec.Header()
	if !slices.Contains(header, startDateHeader) {
		return nil, &ParseError{
			What: fmt.Sprintf("approval table for %s", president),
			Err:  fmt.Errorf("no %q column in %q", startDateHeader, header),
		}
	}

	var ratings []models.ApprovalRating
	for {
		var r models.ApprovalRating
		if err := dec.Decode(&r); err == io.EOF {
			break
		} else if err != nil {
			return nil, &ParseError{What: fmt.Sprintf("approval table for %s", president), Err: err}
		}
		record := dec.Record()
		for _, i := range dec.Unused() {
			if header[i] == "" {
				continue
			}
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[header[i]] = record[i]
		}
		r.President = president
		ratings = append(ratings, r)
	}
	return ratings, nil
}

// ExtraHeaders is the sorted union of the Extra columns of ratings.
func ExtraHeaders(ratings []models.ApprovalRating) []string {
	seen := make(map[string]bool)
	var headers []string
	for _, r := range ratings {
		for h := range r.Extra {
			if !seen[h] {
				seen[h] = true
				headers = append(headers, h)
			}
		}
	}
	slices.Sort(headers)
	return headers
}

// EncodeRatings writes ratings as CSV with a header row. Extra columns
// follow the fixed ones; a rating without one leaves the cell empty.
func EncodeRatings(ratings []models.ApprovalRating) ([]byte, error) {
	data, err := csvutil.Marshal(ratings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approval ratings: %w", err)
	}
	extra := ExtraHeaders(ratings)
	if len(extra) == 0 {
		return data, nil
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to encode approval ratings: %w", err)
	}
	records[0] = append(records[0], extra...)
	for i, r := range ratings {
		for _, h := range extra {
			records[i+1] = append(records[i+1], r.Extra[h])
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to encode approval ratings: %w", err)
	}
	return buf.Bytes(), nil
}
