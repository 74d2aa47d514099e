// Package executor resolves intents to grid operations and runs them.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wapi-nlq/internal/common/config"
	apperrors "wapi-nlq/internal/common/errors"
	nlqhttp "wapi-nlq/internal/common/http"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/common/metrics"
	"wapi-nlq/internal/models"
	"wapi-nlq/internal/nlq/catalog"
)

// Map resolves an intent against the catalog. A missing intent is reported
// as UNKNOWN_INTENT.
func Map(cat *catalog.Catalog, intent string) (models.OperationSpec, *apperrors.StandardError) {
	if cat != nil {
		if spec, ok := cat.Lookup(intent); ok {
			return spec, nil
		}
	}
	return models.OperationSpec{}, apperrors.NewUnknownIntentError(intent)
}

// Executor issues one grid call per query.
type Executor struct {
	client *nlqhttp.Client
	logger logger.Logger
}

func New(client *nlqhttp.Client, log logger.Logger) *Executor {
	return &Executor{
		client: client,
		logger: log.With(map[string]interface{}{"component": "executor"}),
	}
}

// Run maps intent and executes it. It never returns an error: every failure
// is an ExecutionFailed outcome.
func (e *Executor) Run(ctx context.Context, settings *config.RuntimeSettings, cat *catalog.Catalog, intent string, entities models.EntityMap) models.ExecutionOutcome {
	spec, stdErr := Map(cat, intent)
	if stdErr != nil {
		return Failed(stdErr)
	}
	return e.Execute(ctx, settings.Grid, spec, entities, settings.Pipeline)
}

// Execute builds the request for spec from entities and sends it. opts
// supplies _max_results and whether required fields are checked locally.
func (e *Executor) Execute(ctx context.Context, grid config.GridConfig, spec models.OperationSpec, entities models.EntityMap, opts config.PipelineConfig) models.ExecutionOutcome {
	req, stdErr := e.buildRequest(ctx, grid, spec, entities, opts)
	if stdErr != nil {
		return Failed(stdErr)
	}

	start := time.Now()
	resp, err := e.client.Do(req, grid.SSLVerify)
	if err != nil {
		metrics.BackendRequestDuration.WithLabelValues(req.Method, metrics.StatusClass(0)).Observe(time.Since(start).Seconds())
		if isConnectError(err) {
			e.logger.Error("Grid unreachable", map[string]interface{}{
				"host":  GridHost(grid),
				"error": err.Error(),
			})
			return Failed(apperrors.NewBackendUnreachableError(GridHost(grid), err))
		}
		return Failed(apperrors.NewBackendOtherError(err))
	}
	defer resp.Body.Close()
	metrics.BackendRequestDuration.WithLabelValues(req.Method, metrics.StatusClass(resp.StatusCode)).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed(apperrors.NewBackendOtherError(err))
	}

	e.logger.Info("Grid call completed", map[string]interface{}{
		"method":   req.Method,
		"endpoint": spec.Endpoint,
		"status":   resp.StatusCode,
	})

	if resp.StatusCode >= 400 {
		return Failed(apperrors.NewBackendHTTPError(resp.StatusCode, string(body)))
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Failed(apperrors.NewBackendOtherError(fmt.Errorf("invalid JSON response: %w", err)))
	}
	return models.Executed(parsed)
}

func (e *Executor) buildRequest(ctx context.Context, grid config.GridConfig, spec models.OperationSpec, entities models.EntityMap, opts config.PipelineConfig) (*http.Request, *apperrors.StandardError) {
	endpoint := grid.BaseURL() + "/" + strings.TrimLeft(spec.Endpoint, "/")
	method := strings.ToUpper(spec.Method)

	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet:
		params := url.Values{}
		for _, name := range spec.SearchableFields {
			if v, ok := entities[name]; ok {
				params.Set(name, v)
			}
		}
		if opts.MaxResults > 0 {
			params.Set("_max_results", strconv.Itoa(opts.MaxResults))
		}
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)

	case http.MethodPost:
		// Off by default: the grid reports missing fields itself.
		if opts.CheckRequiredFields {
			if missing := missingFields(spec, entities); len(missing) > 0 {
				return nil, apperrors.NewMissingRequiredFieldsError(missing)
			}
		}

		payload := make(map[string]string)
		for _, name := range spec.Fields {
			if v, ok := entities[name]; ok {
				payload[name] = v
			}
		}
		data, merr := json.Marshal(payload)
		if merr != nil {
			return nil, apperrors.NewBackendOtherError(merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}

	default:
		return nil, apperrors.NewMethodNotImplementedError(spec.Method)
	}
	if err != nil {
		return nil, apperrors.NewBackendOtherError(err)
	}

	req.SetBasicAuth(grid.Username, grid.Password)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func missingFields(spec models.OperationSpec, entities models.EntityMap) []string {
	var missing []string
	for _, name := range spec.RequiredFields {
		if !entities.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Failed turns a StandardError into an ExecutionFailed outcome.
func Failed(stdErr *apperrors.StandardError) models.ExecutionOutcome {
	outcome := models.ExecutionFailed(string(stdErr.Code), stdErr.Message)
	if hint := stdErr.Hint(); hint != "" {
		outcome = outcome.WithHint(hint)
	}
	return outcome
}

func isConnectError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// GridHost names the grid for operator messages.
func GridHost(grid config.GridConfig) string {
	if grid.Host != "" {
		return grid.Host
	}
	if u, err := url.Parse(grid.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return grid.URL
}
