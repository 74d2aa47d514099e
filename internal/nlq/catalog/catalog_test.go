package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"wapi-nlq/internal/common/config"
	nlqhttp "wapi-nlq/internal/common/http"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/models"
	"wapi-nlq/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Default Catalog Tests
// ==========================

func TestDefault_CoversNetworkCRUD(t *testing.T) {
	c := Default()

	assert.Equal(t, SourceDefault, c.Source())
	assert.Equal(t, []string{"create_network", "delete_network", "find_network", "update_network"}, c.Intents())

	create, ok := c.Lookup("create_network")
	require.True(t, ok)
	assert.Equal(t, "POST", create.Method)
	assert.Contains(t, create.RequiredFields, "network")
	assert.Equal(t, []string{"network", "comment"}, create.Fields)

	find, ok := c.Lookup("find_network")
	require.True(t, ok)
	assert.Equal(t, "GET", find.Method)
	assert.Equal(t, []string{"network", "comment"}, find.SearchableFields)

	update, _ := c.Lookup("update_network")
	assert.Equal(t, "network/{ref}", update.Endpoint)

	_, ok = c.Lookup("create_zone")
	assert.False(t, ok)
}

func TestCatalog_RequiredSubsetOfFields(t *testing.T) {
	_, err := New("test", map[string]models.OperationSpec{
		"create_host": {Method: "POST", Endpoint: "record:host", Fields: []string{"name"}, RequiredFields: []string{"ipv4addrs"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ipv4addrs")

	_, err = New("test", nil)
	assert.Error(t, err)
}

func TestCatalog_LookupReturnsCopy(t *testing.T) {
	c := Default()

	spec, _ := c.Lookup("create_network")
	spec.Fields[0] = "mutated"

	again, _ := c.Lookup("create_network")
	assert.Equal(t, "network", again.Fields[0])
}

// ==========================
// File Catalog Tests
// ==========================

func TestLoadFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.json")
	data, err := json.Marshal(Default().ToRegistry("v2.13.1"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, SourceFile, c.Source())
	assert.Equal(t, Default().Intents(), c.Intents())
	create, _ := c.Lookup("create_network")
	assert.Equal(t, []string{"network"}, create.RequiredFields)
}

func TestLoadFile_RoundTripLiveNames(t *testing.T) {
	live, err := New(SourceLive, map[string]models.OperationSpec{
		"find_" + IntentNoun("ipv4address"): {Method: "GET", Endpoint: "ipv4address", SearchableFields: []string{"ip_address"}},
		"create_" + IntentNoun("ipv6network"): {
			Method:         "POST",
			Endpoint:       "ipv6network",
			Fields:         []string{"network", "comment"},
			RequiredFields: []string{"network"},
		},
		"find_" + IntentNoun("record:a"): {Method: "GET", Endpoint: "record:a", SearchableFields: []string{"name"}},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "intents.json")
	require.NoError(t, registry.SaveRegistry(path, live.ToRegistry("v2.13.1")))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"create_ipv6network", "find_a", "find_ipv4address"}, c.Intents())

	spec, ok := c.Lookup("create_ipv6network")
	require.True(t, ok)
	assert.Equal(t, []string{"network"}, spec.RequiredFields)
}

func TestLoad_FallsBackToDefault(t *testing.T) {
	log := logger.NewTestLogger(t)

	c := Load(context.Background(), config.CatalogConfig{Source: "file", Path: "/nonexistent/intents.json"}, config.GridConfig{}, nil, log)
	assert.Equal(t, SourceDefault, c.Source())

	c = Load(context.Background(), config.CatalogConfig{Source: "live"}, config.GridConfig{}, nil, log)
	assert.Equal(t, SourceDefault, c.Source())

	c = Load(context.Background(), config.CatalogConfig{Source: "default"}, config.GridConfig{}, nil, log)
	assert.Equal(t, SourceDefault, c.Source())
}

// ==========================
// Live Catalog Tests
// ==========================

func newSchemaServer(t *testing.T, objects map[string]string, failing map[string]bool) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "infoblox" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		obj := strings.TrimPrefix(r.URL.Path, "/wapi/v2.13.1")
		obj = strings.TrimPrefix(obj, "/")
		if obj == "" {
			names := make([]string, 0, len(objects))
			for name := range objects {
				names = append(names, name)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"supported_objects": names})
			return
		}

		assert.Equal(t, "2", r.URL.Query().Get("_schema_version"))
		if failing[obj] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(objects[obj]))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testGrid(server *httptest.Server) config.GridConfig {
	return config.GridConfig{
		URL:      server.URL + "/wapi/v2.13.1",
		Username: "admin",
		Password: "infoblox",
		Timeout:  5000,
	}
}

const networkSchema = `{
  "restrictions": ["create", "read", "update", "delete"],
  "fields": [
    {"name": "network", "searchable": true, "required_on_create": true},
    {"name": "comment", "searchable_by": "=~:"},
    {"name": "extattrs"}
  ]
}`

const hostSchema = `{
  "restrictions": ["create", "read"],
  "fields": [
    {"name": "name", "searchable": true, "required_on_create": true},
    {"name": "ipv4addrs", "required_on_create": true}
  ]
}`

func TestLiveLoader_Load(t *testing.T) {
	server, _ := newSchemaServer(t, map[string]string{
		"network":     networkSchema,
		"record:host": hostSchema,
	}, nil)

	loader := NewLiveLoader(nlqhttp.NewClient(5*time.Second), logger.NewTestLogger(t))
	c, err := loader.Load(context.Background(), testGrid(server))
	require.NoError(t, err)

	assert.Equal(t, SourceLive, c.Source())
	assert.Equal(t, []string{
		"create_host", "create_network", "delete_network",
		"find_host", "find_network", "update_network",
	}, c.Intents())

	createNet, _ := c.Lookup("create_network")
	assert.Equal(t, []string{"network", "comment", "extattrs"}, createNet.Fields)
	assert.Equal(t, []string{"network"}, createNet.RequiredFields)

	findNet, _ := c.Lookup("find_network")
	assert.Equal(t, []string{"network", "comment"}, findNet.SearchableFields)

	createHost, _ := c.Lookup("create_host")
	assert.Equal(t, "record:host", createHost.Endpoint)
	assert.Equal(t, []string{"name", "ipv4addrs"}, createHost.RequiredFields)
}

func TestLiveLoader_SkipsFailingObjects(t *testing.T) {
	server, _ := newSchemaServer(t, map[string]string{
		"network":     networkSchema,
		"record:host": hostSchema,
	}, map[string]bool{"record:host": true})

	loader := NewLiveLoader(nlqhttp.NewClient(5*time.Second), logger.NewTestLogger(t))
	c, err := loader.Load(context.Background(), testGrid(server))
	require.NoError(t, err)

	assert.False(t, c.Has("create_host"))
	assert.True(t, c.Has("create_network"))
}

func TestLiveLoader_LimitsObjects(t *testing.T) {
	objects := map[string]string{}
	for _, name := range []string{"network", "range", "lease", "zone_auth", "record:a"} {
		objects[name] = `{"restrictions": ["read"], "fields": [{"name": "comment"}]}`
	}
	server, calls := newSchemaServer(t, objects, nil)

	loader := NewLiveLoader(nlqhttp.NewClient(5*time.Second), logger.NewTestLogger(t))
	loader.MaxObjects = 2
	c, err := loader.Load(context.Background(), testGrid(server))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestLiveLoader_BadCredentials(t *testing.T) {
	server, _ := newSchemaServer(t, map[string]string{"network": networkSchema}, nil)
	grid := testGrid(server)
	grid.Password = "wrong"

	loader := NewLiveLoader(nlqhttp.NewClient(5*time.Second), logger.NewTestLogger(t))
	_, err := loader.Load(context.Background(), grid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	c := Load(context.Background(), config.CatalogConfig{Source: "live"}, grid, loader, logger.NewTestLogger(t))
	assert.Equal(t, SourceDefault, c.Source())
}

func TestIntentNoun(t *testing.T) {
	assert.Equal(t, "host", IntentNoun("record:host"))
	assert.Equal(t, "network", IntentNoun("network"))
	assert.Equal(t, "zone_auth", IntentNoun("zone_auth"))
	assert.Equal(t, "grid_dns", IntentNoun("grid:dns"))
}
