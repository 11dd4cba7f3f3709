package dashboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"covid_dashboard/internal/data"
	"covid_dashboard/internal/layout"
)

// ErrUnknownCountry is returned when a requested country is not in the dataset
var ErrUnknownCountry = errors.New("unknown country")

// MaxSuggestions bounds the suggestions attached to a CountryError
const MaxSuggestions = 3

// Default dropdown selections
const (
	DefaultCountry       = "Ireland"
	DefaultSecondCountry = "United Kingdom"
)

// Ids of the widget dropdowns, as read by the page script
const (
	CountryDropdownID  = "Country/Region-dropdown"
	VariantsDropdownID = "eu_dropdown"
	dropdownClass      = "w-50"
)

// CountryError reports an unknown country together with the closest known names
type CountryError struct {
	Name        string
	Suggestions []string
}

func (e *CountryError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown country %q", e.Name)
	}
	return fmt.Sprintf("unknown country %q, did you mean %s", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *CountryError) Unwrap() error {
	return ErrUnknownCountry
}

// ResolveCountry returns the known spelling of name: an exact match first, then a case
// insensitive one. Otherwise the error is a *CountryError.
func ResolveCountry(countries []string, name string) (string, error) {
	name = strings.TrimSpace(name)
	for _, c := range countries {
		if c == name {
			return c, nil
		}
	}
	for _, c := range countries {
		if strings.EqualFold(c, name) {
			return c, nil
		}
	}
	return "", &CountryError{Name: name, Suggestions: Suggest(countries, name, MaxSuggestions)}
}

// ResolveCountries resolves every name, dropping duplicates and keeping order
func ResolveCountries(countries []string, names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		c, err := ResolveCountry(countries, n)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Suggest returns up to n countries closest to q by edit distance, ignoring case.
// Ties are ordered by name.
func Suggest(countries []string, q string, n int) []string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" || n <= 0 {
		return nil
	}

	type scored struct {
		name string
		dist int
	}
	all := make([]scored, 0, len(countries))
	for _, c := range countries {
		lc := strings.ToLower(c)
		d := levenshtein.ComputeDistance(q, lc)
		if strings.HasPrefix(lc, q) {
			d = 0
		}
		all = append(all, scored{c, d})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].name < all[j].name
	})

	limit := len(q)/2 + 2
	var out []string
	for _, s := range all {
		if len(out) == n || s.dist > limit {
			break
		}
		out = append(out, s.name)
	}
	return out
}

// Search returns the countries containing q, ignoring case. When nothing contains q
// the closest names by edit distance are returned instead.
func Search(countries []string, q string) []string {
	q = strings.TrimSpace(q)
	if q == "" {
		return countries
	}
	lq := strings.ToLower(q)

	var out []string
	for _, c := range countries {
		if strings.Contains(strings.ToLower(c), lq) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return Suggest(countries, q, MaxSuggestions)
	}
	return out
}

// Widgets builds the five country dropdowns of the page from ds
func Widgets(ds *data.Dataset) layout.Widgets {
	countries := options(ds.Countries())
	variants := options(ds.VariantCountries())

	single := func(id string, opts []layout.Option) *layout.Dropdown {
		return &layout.Dropdown{ID: id, Options: opts, Value: defaults(opts, DefaultCountry), Class: dropdownClass}
	}
	multi := func(id string) *layout.Dropdown {
		return &layout.Dropdown{
			ID:      id,
			Options: countries,
			Value:   defaults(countries, DefaultCountry, DefaultSecondCountry),
			Multi:   true,
			Class:   dropdownClass,
		}
	}

	return layout.Widgets{
		CountryDropdown:          single(CountryDropdownID, countries),
		CountryDropdown1:         single(layout.KeyCountryDropdown1, countries),
		CountryDropdownMultiple:  multi(layout.KeyCountryDropdownMultiple),
		CountryDropdownMultiple1: multi(layout.KeyCountryDropdownMultiple1),
		VariantsDropdown:         single(VariantsDropdownID, variants),
	}
}

func options(values []string) []layout.Option {
	opts := make([]layout.Option, len(values))
	for i, v := range values {
		opts[i] = layout.Option{Label: v, Value: v}
	}
	return opts
}

// defaults keeps the wanted values present among opts
func defaults(opts []layout.Option, wanted ...string) []string {
	var out []string
	for _, w := range wanted {
		for _, o := range opts {
			if o.Value == w {
				out = append(out, w)
				break
			}
		}
	}
	return out
}
