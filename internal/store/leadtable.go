package store

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadenrich-cli/internal/model"
)

// outputColumns are appended to every output file, after the passthrough
// columns from the input.
var outputColumns = []string{
	"instagram_url",
	"username",
	"full_name",
	"bio",
	"followers",
	"following",
	"posts",
	"verified",
	"is_business",
	"business_category",
	"external_url",
	"status",
	"estimated_cost",
	"error",
}

var nameHeaders = map[string]bool{
	"name":         true,
	"full_name":    true,
	"lead_name":    true,
	"contact_name": true,
}

var emailHeaders = map[string]bool{
	"email":         true,
	"email_address": true,
	"e_mail":        true,
}

// LeadTable is a loaded input file: the passthrough headers in original
// order plus one Lead per data row.
type LeadTable struct {
	Path    string
	Headers []string
	Leads   []model.Lead
}

// LoadLeads reads a lead table from a CSV or XLSX file. Name and email
// columns are matched loosely on header text; at least one must exist.
func LoadLeads(path string) (*LeadTable, error) {
	var records [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		records, err = readXLSXRecords(path)
	default:
		records, err = readCSVRecords(path)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("store: %s has no header row", path)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	nameIdx, emailIdx := -1, -1
	urlIdx, statusIdx := -1, -1
	for i, h := range headers {
		switch n := normalizeHeader(h); {
		case nameHeaders[n] && nameIdx < 0:
			nameIdx = i
		case emailHeaders[n] && emailIdx < 0:
			emailIdx = i
		case n == "instagram_url" && urlIdx < 0:
			urlIdx = i
		case n == "status" && statusIdx < 0:
			statusIdx = i
		}
	}
	if nameIdx < 0 && emailIdx < 0 {
		return nil, eris.Errorf("store: %s has neither a name nor an email column", path)
	}

	table := &LeadTable{Path: path, Headers: headers}
	for i, rec := range records[1:] {
		lead := model.Lead{
			Row:   i + 1,
			Extra: make(map[string]string, len(headers)),
		}
		for j, h := range headers {
			lead.Extra[h] = cell(rec, j)
		}
		if nameIdx >= 0 {
			lead.Name = strings.TrimSpace(cell(rec, nameIdx))
		}
		if emailIdx >= 0 {
			lead.Email = strings.TrimSpace(cell(rec, emailIdx))
		}
		if urlIdx >= 0 {
			lead.ExistingURL = strings.TrimSpace(cell(rec, urlIdx))
		}
		if statusIdx >= 0 {
			lead.ExistingStatus = strings.TrimSpace(cell(rec, statusIdx))
		}
		table.Leads = append(table.Leads, lead)
	}
	return table, nil
}

// PassthroughHeaders returns the input headers minus the enrichment
// columns, so re-running on an already enriched file does not duplicate
// them.
func (t *LeadTable) PassthroughHeaders() []string {
	generated := make(map[string]bool, len(outputColumns))
	for _, c := range outputColumns {
		generated[c] = true
	}

	var out []string
	for _, h := range t.Headers {
		if !generated[normalizeHeader(h)] {
			out = append(out, h)
		}
	}
	return out
}

// SaveEnriched writes the output file: passthrough columns followed by the
// enrichment columns. rows must be in input order and cover every lead.
func SaveEnriched(path string, table *LeadTable, rows []model.EnrichedLead) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "store: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	passthrough := table.PassthroughHeaders()

	header := make([]string, 0, len(passthrough)+len(outputColumns))
	header = append(header, passthrough...)
	header = append(header, outputColumns...)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "store: write header")
	}

	for _, row := range rows {
		rec := make([]string, 0, len(header))
		for _, h := range passthrough {
			rec = append(rec, row.Lead.Extra[h])
		}
		rec = append(rec, enrichmentCells(table, row)...)
		if err := w.Write(rec); err != nil {
			return eris.Wrapf(err, "store: write row %d", row.Lead.Row)
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "store: flush output")
}

// enrichmentCells renders the generated columns for one row. Rows resumed
// from a prior run keep their previous cell values.
func enrichmentCells(table *LeadTable, row model.EnrichedLead) []string {
	resumed := row.Profile == nil && row.Attributes == nil && row.Lead.ExistingURL != ""

	prior := func(col string) string {
		for _, h := range table.Headers {
			if normalizeHeader(h) == col {
				return row.Lead.Extra[h]
			}
		}
		return ""
	}

	url := prior("instagram_url")
	if row.Profile != nil {
		url = row.Profile.ProfileURL
	}
	username := prior("username")
	if row.Profile != nil {
		username = row.Profile.Username
	}

	attrs := [9]string{}
	cols := [9]string{"full_name", "bio", "followers", "following", "posts", "verified", "is_business", "business_category", "external_url"}
	if a := row.Attributes; a != nil {
		attrs = [9]string{
			a.FullName,
			a.Bio,
			strconv.Itoa(a.Followers),
			strconv.Itoa(a.Following),
			strconv.Itoa(a.Posts),
			strconv.FormatBool(a.Verified),
			strconv.FormatBool(a.IsBusiness),
			a.BusinessCategory,
			a.ExternalURL,
		}
	} else if resumed {
		for i, c := range cols {
			attrs[i] = prior(c)
		}
	}

	costCell := strconv.FormatFloat(row.Cost, 'f', 4, 64)
	if resumed {
		if p := prior("estimated_cost"); p != "" {
			costCell = p
		}
	}

	out := make([]string, 0, len(outputColumns))
	out = append(out, url, username)
	out = append(out, attrs[:]...)
	out = append(out, string(row.Status), costCell, row.Error)
	return out
}

// DefaultOutputPath derives the timestamped output name next to the input.
func DefaultOutputPath(inputPath string, now time.Time) string {
	dir := filepath.Dir(inputPath)
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(dir, stem+"_enriched_"+now.Format("20060102_150405")+".csv")
}

func readCSVRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil && err != io.EOF {
		return nil, eris.Wrapf(err, "store: parse %s", path)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\uFEFF")
	}
	return records, nil
}

func readXLSXRecords(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("store: %s has no sheets", path)
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		records = append(records, cells)
	}
	return records, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}
