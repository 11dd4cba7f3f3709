package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"covid_dashboard/internal/dashboard"
	"covid_dashboard/internal/transform"
)

// ErrInvalidParameter is returned for a query parameter that does not parse
var ErrInvalidParameter = errors.New("invalid parameter")

// Query parameters read by the callback and export endpoints
const (
	ParamCountry     = "country"
	ParamCountries   = "countries"
	ParamStartDate   = "start_date"
	ParamEndDate     = "end_date"
	ParamByWeek      = "by_week"
	ParamPerHundredK = "per_100k"
	ParamOption      = "option"
)

// ParseRequest reads the control values of a callback from the query string.
// Missing values take the control defaults: no country, no dates, unchecked boxes,
// and new cases for the comparison option.
func ParseRequest(q url.Values) (dashboard.Request, error) {
	var req dashboard.Request
	var err error

	req.Country = strings.TrimSpace(q.Get(ParamCountry))
	req.Countries = values(q, ParamCountries)

	if req.Start, err = dashboard.ParseDate(q.Get(ParamStartDate)); err != nil {
		return req, err
	}
	if req.End, err = dashboard.ParseDate(q.Get(ParamEndDate)); err != nil {
		return req, err
	}
	if req.ByWeek, err = parseBool(q, ParamByWeek); err != nil {
		return req, err
	}
	if req.PerHundredK, err = parseBool(q, ParamPerHundredK); err != nil {
		return req, err
	}

	req.Option = transform.CompareNewCases
	if s := strings.TrimSpace(q.Get(ParamOption)); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, ParamOption, s)
		}
		req.Option = transform.CompareOption(n)
	}
	return req, nil
}

// values returns the non-empty values of a repeated parameter
func values(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseBool(q url.Values, key string) (bool, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, key, s)
	}
	return b, nil
}
