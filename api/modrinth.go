package api

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
)

type Modrinth struct {
	client *resty.Client
	base   string
}

func NewModrinth(client *resty.Client, base string) *Modrinth {
	return &Modrinth{client: client, base: base}
}

type searchResult struct {
	Hits      []util.ModHit `json:"hits"`
	TotalHits int           `json:"total_hits"`
}

// Search queries the registry for mods, optionally narrowed to a game version
// and a loader category.
func (m *Modrinth) Search(ctx context.Context, query, gameVersion string, loader util.LoaderKind, limit int) ([]util.ModHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "bad_request", "search query is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	facets := [][]string{{"project_type:mod"}}
	if loader != "" && loader != util.LoaderVanilla {
		facets = append(facets, []string{"categories:" + string(loader)})
	}
	if gameVersion != "" {
		facets = append(facets, []string{"versions:" + gameVersion})
	}
	encoded, err := json.Marshal(facets)
	if err != nil {
		return nil, err
	}

	var search searchResult
	resp, err := m.client.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":  query,
			"facets": string(encoded),
			"limit":  strconv.Itoa(limit),
		}).
		SetResult(&search).SetError(&remoteError{}).
		Get(m.base + "/search")
	if err := classify("search mods", resp, err, false); err != nil {
		return nil, err
	}
	return search.Hits, nil
}
