package typesenseapi

import (
	"fmt"
	"slices"
	"strings"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/typesense/typesense-go/v3/typesense/api/pointer"
)

const wildcardQuery = "*"

// buildSearchParams will return the search collection parameters
// for the typesense search API without any knowledge of the typesense API.
// The from/size window has to be page aligned since typesense pages are 1-based.
func buildSearchParams(queryBy string, req entityrepo.SearchRequest) (*api.SearchCollectionParams, error) {
	filterBy, err := getFilterByString(req.Filter)
	if err != nil {
		return nil, err
	}

	q := req.Query
	if q == "" {
		q = wildcardQuery
	}

	parameters := &api.SearchCollectionParams{}
	parameters.Q = pointer.String(q)
	if queryBy != "" {
		parameters.QueryBy = pointer.String(queryBy)
	}
	if filterBy != "" {
		parameters.FilterBy = pointer.String(filterBy)
	}
	if sortBy := getSortByString(req.Sort); sortBy != "" {
		parameters.SortBy = pointer.String(sortBy)
	}

	page, perPage, err := pageWindow(req.From, req.Size)
	if err != nil {
		return nil, err
	}
	parameters.Page = pointer.Int(page)
	parameters.PerPage = pointer.Int(perPage)

	return parameters, nil
}

// pageWindow maps an offset window onto typesense page/per_page.
func pageWindow(from, size int) (int, int, error) {
	if from < 0 {
		from = 0
	}
	if size <= 0 {
		// per_page=0 only returns the found count
		if from != 0 {
			return 0, 0, entityrepo.ErrUnalignedWindow
		}
		return 1, 0, nil
	}
	if from%size != 0 {
		return 0, 0, fmt.Errorf("%w: from=%d size=%d", entityrepo.ErrUnalignedWindow, from, size)
	}
	return from/size + 1, size, nil
}

// getFilterByString accepts a raw filter_by expression or a field map.
// Map entries are joined in key order so equal maps produce equal queries.
func getFilterByString(filter entityrepo.Filter) (string, error) {
	switch f := filter.(type) {
	case nil:
		return "", nil
	case string:
		return f, nil
	case map[string]string:
		if len(f) == 0 {
			return "", nil
		}
		keys := make([]string, 0, len(f))
		for key := range f {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		filterByString := make([]string, 0, len(keys))
		for _, key := range keys {
			filterByString = append(filterByString, key+":="+f[key])
		}
		return strings.Join(filterByString, "&&"), nil
	default:
		return "", fmt.Errorf("%w: %T", entityrepo.ErrUnsupportedFilter, filter)
	}
}

func getSortByString(sort []entityrepo.SortField) string {
	if len(sort) == 0 {
		return ""
	}
	clauses := make([]string, len(sort))
	for i, field := range sort {
		clauses[i] = field.String()
	}
	return strings.Join(clauses, ",")
}
