// Package menu loads the drive-in deal list and answers name lookups.
package menu

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"drive-in/internal/domain"
)

// Column headers expected in the menu sheet.
const (
	ColumnDeal        = "Deal"
	ColumnPrice       = "Price (in Rs.)"
	ColumnDescription = "Description"
)

// Catalog is the read-only, ordered list of deals.
type Catalog struct {
	items []domain.MenuItem
}

func New(items []domain.MenuItem) *Catalog {
	cp := make([]domain.MenuItem, len(items))
	copy(cp, items)
	return &Catalog{items: cp}
}

// Load reads a catalog from the CSV file at path. On any failure the
// returned catalog is nil and the error wraps one of ErrSourceNotFound,
// ErrSourceEmpty or ErrSourceMalformed.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("opening menu %s: %w", path, err)
	}
	defer f.Close()

	cat, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("loading menu %s: %w", path, err)
	}
	return cat, nil
}

// Parse reads a catalog from CSV data with a header row.
func Parse(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrSourceEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrSourceMalformed, err)
	}

	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	var items []domain.MenuItem
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceMalformed, err)
		}

		item, err := cols.item(record)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrSourceMalformed, line, err)
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrSourceEmpty
	}

	return &Catalog{items: items}, nil
}

type columns struct {
	deal, price, description int
}

func locateColumns(header []string) (columns, error) {
	cols := columns{deal: -1, price: -1, description: -1}
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case ColumnDeal:
			if cols.deal < 0 {
				cols.deal = i
			}
		case ColumnPrice:
			if cols.price < 0 {
				cols.price = i
			}
		case ColumnDescription:
			if cols.description < 0 {
				cols.description = i
			}
		}
	}

	var missing []string
	if cols.deal < 0 {
		missing = append(missing, ColumnDeal)
	}
	if cols.price < 0 {
		missing = append(missing, ColumnPrice)
	}
	if cols.description < 0 {
		missing = append(missing, ColumnDescription)
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: missing columns %s", ErrSourceMalformed, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) item(record []string) (domain.MenuItem, error) {
	name := strings.TrimSpace(record[c.deal])
	if name == "" {
		return domain.MenuItem{}, fmt.Errorf("blank deal name")
	}

	price, err := parsePrice(record[c.price])
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("deal %q: %w", name, err)
	}

	return domain.MenuItem{
		Name:        name,
		Price:       price,
		Description: strings.TrimSpace(record[c.description]),
	}, nil
}

func parsePrice(raw string) (int, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	s = strings.TrimSuffix(s, ".0")
	price, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", raw)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative price %d", price)
	}
	return price, nil
}

// FindByName returns the first deal whose name equals name, ignoring case.
func (c *Catalog) FindByName(name string) (domain.MenuItem, bool) {
	want := strings.ToLower(name)
	for _, item := range c.items {
		if strings.ToLower(item.Name) == want {
			return item, true
		}
	}
	return domain.MenuItem{}, false
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.items))
	for _, item := range c.items {
		names = append(names, item.Name)
	}
	return names
}

func (c *Catalog) Items() []domain.MenuItem {
	cp := make([]domain.MenuItem, len(c.items))
	copy(cp, c.items)
	return cp
}

func (c *Catalog) Len() int {
	return len(c.items)
}
