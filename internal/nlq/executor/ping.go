package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"wapi-nlq/internal/common/config"
)

// PingTimeout bounds the connectivity check.
const PingTimeout = 5 * time.Second

// PingResult reports whether the grid answered with the configured credentials.
type PingResult struct {
	OK      bool   `json:"ok"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// Ping requests the grid's schema root.
func (e *Executor) Ping(ctx context.Context, grid config.GridConfig) PingResult {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, grid.BaseURL()+"?_schema", nil)
	if err != nil {
		return PingResult{Message: err.Error()}
	}
	req.SetBasicAuth(grid.Username, grid.Password)

	resp, err := e.client.Do(req, grid.SSLVerify)
	if err != nil {
		e.logger.Warn("Grid connectivity check failed", map[string]interface{}{
			"host":  GridHost(grid),
			"error": err.Error(),
		})
		return PingResult{Message: fmt.Sprintf("Cannot connect to %s", GridHost(grid))}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return PingResult{OK: true, Status: resp.StatusCode, Message: "Connected successfully"}
	case http.StatusUnauthorized:
		return PingResult{Status: resp.StatusCode, Message: "Authentication failed - check credentials"}
	default:
		return PingResult{Status: resp.StatusCode, Message: fmt.Sprintf("Connection failed: %d", resp.StatusCode)}
	}
}
