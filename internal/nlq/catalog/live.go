// internal/nlq/catalog/live.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"wapi-nlq/internal/common/config"
	nlqhttp "wapi-nlq/internal/common/http"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/models"

	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxObjects  = 50
	defaultConcurrency = 8
)

// LiveLoader builds a catalog from the grid's own ?_schema description.
type LiveLoader struct {
	client      *nlqhttp.Client
	logger      logger.Logger
	MaxObjects  int
	Concurrency int
}

func NewLiveLoader(client *nlqhttp.Client, log logger.Logger) *LiveLoader {
	return &LiveLoader{
		client:      client,
		logger:      log.With(map[string]interface{}{"component": "catalog.live"}),
		MaxObjects:  defaultMaxObjects,
		Concurrency: defaultConcurrency,
	}
}

type supportedObjects struct {
	SupportedObjects []string `json:"supported_objects"`
}

type objectSchema struct {
	Restrictions []string      `json:"restrictions"`
	Fields       []schemaField `json:"fields"`
}

type schemaField struct {
	Name             string `json:"name"`
	Searchable       bool   `json:"searchable"`
	SearchableBy     string `json:"searchable_by"`
	RequiredOnCreate bool   `json:"required_on_create"`
}

// Load fetches the object list, then each object's schema concurrently. An
// object whose schema cannot be fetched is skipped; failing to list objects
// fails the whole load.
func (l *LiveLoader) Load(ctx context.Context, grid config.GridConfig) (*Catalog, error) {
	var objects supportedObjects
	if err := l.getJSON(ctx, grid, grid.BaseURL()+"?_schema", &objects); err != nil {
		return nil, fmt.Errorf("fetch supported objects: %w", err)
	}
	if len(objects.SupportedObjects) == 0 {
		return nil, fmt.Errorf("grid reported no supported objects")
	}

	names := objects.SupportedObjects
	if l.MaxObjects > 0 && len(names) > l.MaxObjects {
		names = names[:l.MaxObjects]
	}

	var (
		mu      sync.Mutex
		intents = make(map[string]models.OperationSpec)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.Concurrency)
	for _, obj := range names {
		obj := obj
		g.Go(func() error {
			var schema objectSchema
			url := fmt.Sprintf("%s/%s?_schema&_schema_version=2", grid.BaseURL(), obj)
			if err := l.getJSON(gctx, grid, url, &schema); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				l.logger.Warn("Skipping object schema", map[string]interface{}{
					"object": obj,
					"error":  err.Error(),
				})
				return nil
			}

			mu.Lock()
			for name, spec := range intentsForObject(obj, schema) {
				intents[name] = spec
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c, err := New(SourceLive, intents)
	if err != nil {
		return nil, err
	}
	l.logger.Info("Loaded live catalog", map[string]interface{}{
		"objects": len(names),
		"intents": c.Len(),
	})
	return c, nil
}

// intentsForObject derives create/find/update/delete intents from the
// operations an object's restrictions list names.
func intentsForObject(obj string, schema objectSchema) map[string]models.OperationSpec {
	noun := IntentNoun(obj)
	allowed := make(map[string]bool, len(schema.Restrictions))
	for _, r := range schema.Restrictions {
		allowed[strings.ToLower(r)] = true
	}

	var fields, searchable, required []string
	for _, f := range schema.Fields {
		if f.Name == "" {
			continue
		}
		fields = append(fields, f.Name)
		if f.Searchable || f.SearchableBy != "" {
			searchable = append(searchable, f.Name)
		}
		if f.RequiredOnCreate {
			required = append(required, f.Name)
		}
	}

	out := make(map[string]models.OperationSpec, 4)
	if allowed["create"] {
		out["create_"+noun] = models.OperationSpec{
			Method:         http.MethodPost,
			Endpoint:       obj,
			Fields:         fields,
			RequiredFields: required,
		}
	}
	if allowed["read"] {
		out["find_"+noun] = models.OperationSpec{
			Method:           http.MethodGet,
			Endpoint:         obj,
			SearchableFields: searchable,
		}
	}
	if allowed["update"] {
		out["update_"+noun] = models.OperationSpec{
			Method:   http.MethodPut,
			Endpoint: obj + "/{ref}",
			Fields:   fields,
		}
	}
	if allowed["delete"] {
		out["delete_"+noun] = models.OperationSpec{
			Method:   http.MethodDelete,
			Endpoint: obj + "/{ref}",
		}
	}
	return out
}

// IntentNoun maps a grid object name onto the noun used in intent names:
// record:host becomes host, zone_auth stays zone_auth, grid:dns becomes grid_dns.
func IntentNoun(obj string) string {
	noun := strings.TrimPrefix(obj, "record:")
	return strings.ReplaceAll(noun, ":", "_")
}

func (l *LiveLoader) getJSON(ctx context.Context, grid config.GridConfig, url string, out interface{}) error {
	timeout := config.GetDuration(grid.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(grid.Username, grid.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req, grid.SSLVerify)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}
