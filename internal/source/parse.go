package source

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/measure"
)

// jsonListKey holds the per-line entries in the JSON form of the page.
const jsonListKey = "完整数据列表"

// parseHTMLTable reads the first table whose class contains "table-striped".
// Rows whose cell count differs from the schema are kept with the cells they
// have; the normalizer drops them.
func parseHTMLTable(body []byte) ([]measure.Row, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	table := findTable(doc)
	if table == nil {
		return nil, errors.New("no table-striped table on page")
	}

	var rows []measure.Row
	for section := range table.ChildNodes() {
		if section.Type != html.ElementNode || section.Data != "tbody" {
			continue
		}
		for tr := range section.ChildNodes() {
			if tr.Type != html.ElementNode || tr.Data != "tr" {
				continue
			}
			rows = append(rows, rowFromCells(cells(tr)))
		}
	}
	return rows, nil
}

func findTable(n *html.Node) *html.Node {
	for d := range n.Descendants() {
		if d.Type != html.ElementNode || d.Data != "table" {
			continue
		}
		for _, a := range d.Attr {
			if a.Key == "class" && strings.Contains(a.Val, "table-striped") {
				return d
			}
		}
	}
	return nil
}

func cells(tr *html.Node) []string {
	var out []string
	for td := range tr.ChildNodes() {
		if td.Type == html.ElementNode && (td.Data == "td" || td.Data == "th") {
			out = append(out, strings.TrimSpace(text(td)))
		}
	}
	return out
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return b.String()
}

// rowFromCells maps positional cells onto the column schema. Surplus cells
// are kept under numbered keys so the row fails the schema check.
func rowFromCells(cells []string) measure.Row {
	row := make(measure.Row, len(cells))
	for i, c := range cells {
		if i < len(measure.Columns) {
			row[measure.Columns[i]] = c
		} else {
			row["extra"+strconv.Itoa(i)] = c
		}
	}
	return row
}

// parseJSONRows reads the line → entries object of the JSON form. Entry
// order within a line is kept; lines follow document order.
func parseJSONRows(body []byte) ([]measure.Row, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON payload")
	}
	list := gjson.GetBytes(body, jsonListKey)
	if !list.IsObject() {
		return nil, errors.New("JSON payload has no " + jsonListKey + " object")
	}

	var rows []measure.Row
	list.ForEach(func(line, entries gjson.Result) bool {
		i := 0
		entries.ForEach(func(_, e gjson.Result) bool {
			i++
			rows = append(rows, measure.Row{
				measure.ColOrdinal:    strconv.Itoa(i),
				measure.ColLine:       line.String(),
				measure.ColAddress:    e.Get("优选IP").String(),
				measure.ColLoss:       e.Get("丢包").String(),
				measure.ColLatency:    e.Get("延迟").String(),
				measure.ColThroughput: e.Get("速度").String(),
				measure.ColBandwidth:  e.Get("带宽").String(),
				measure.ColColo:       e.Get("Colo").String(),
				measure.ColTime:       e.Get("时间").String(),
			})
			return true
		})
		return true
	})
	return rows, nil
}
