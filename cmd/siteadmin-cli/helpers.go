package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bigkaa/siteadmin/internal/domain/listing"
)

// criteriaFlags — флаги выборки, общие для list и export.
type criteriaFlags struct {
	search string
	sort   string
	dir    string
	from   string
	to     string
}

// criteria собирает критерии из флагов и аргументов поле=значение.
// Проверка полей и ключа сортировки — в сервисе списков.
func (f criteriaFlags) criteria(filterArgs []string) (listing.Criteria, error) {
	c := listing.Criteria{
		Search:  strings.TrimSpace(f.search),
		SortKey: strings.TrimSpace(f.sort),
	}
	if f.dir != "" {
		c.SortDir = listing.ParseDirection(f.dir)
	}
	for _, arg := range filterArgs {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return listing.Criteria{}, fmt.Errorf("некорректный фильтр %q (ожидается поле=значение)", arg)
		}
		if c.Equality == nil {
			c.Equality = make(map[string]string)
		}
		c.Equality[key] = val
	}
	if f.from != "" || f.to != "" {
		rng, err := listing.ParseRange(f.from, f.to)
		if err != nil {
			return listing.Criteria{}, err
		}
		c.Range = rng
	}
	return c, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
