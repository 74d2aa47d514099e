package entities

import (
	"testing"

	"wapi-nlq/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPatternExtractor_Extract(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected models.EntityMap
	}{
		{
			name:     "cidr and unquoted comment",
			text:     "Create a network with CIDR 10.0.0.0/24 and comment TestNetwork",
			expected: models.EntityMap{"network": "10.0.0.0/24", "comment": "TestNetwork"},
		},
		{
			name:     "no entities",
			text:     "List all networks",
			expected: models.EntityMap{},
		},
		{
			name:     "bare ip only",
			text:     "find host with address 192.168.1.20",
			expected: models.EntityMap{"ip": "192.168.1.20"},
		},
		{
			name:     "cidr does not leak into ip",
			text:     "show network 172.16.0.0/16",
			expected: models.EntityMap{"network": "172.16.0.0/16"},
		},
		{
			name:     "ip outside the cidr span is kept",
			text:     "add 10.1.0.0/16 with gateway 10.1.0.1",
			expected: models.EntityMap{"network": "10.1.0.0/16", "ip": "10.1.0.1"},
		},
		{
			name:     "double quoted comment",
			text:     `create network 10.2.0.0/24 comment "Lab segment"`,
			expected: models.EntityMap{"network": "10.2.0.0/24", "comment": "Lab segment"},
		},
		{
			name:     "single quoted comment",
			text:     `update network comment 'moved to DC2' please`,
			expected: models.EntityMap{"comment": "moved to DC2"},
		},
		{
			name:     "fqdn and mac",
			text:     "add host server1.example.com with mac 00:1A:2b:3C:4d:5E",
			expected: models.EntityMap{"fqdn": "server1.example.com", "mac": "00:1A:2b:3C:4d:5E"},
		},
		{
			name:     "ttl and extattr",
			text:     "create record www.corp.net with ttl 3600 and extattr Site",
			expected: models.EntityMap{"fqdn": "www.corp.net", "ttl": "3600", "extattr": "Site"},
		},
		{
			name:     "ttl with separator",
			text:     "set TTL=600",
			expected: models.EntityMap{"ttl": "600"},
		},
		{
			name:     "extensible attribute phrase",
			text:     `find networks with extensible attribute named "Building"`,
			expected: models.EntityMap{"extattr": "Building"},
		},
		{
			name:     "first match per kind wins",
			text:     "delete 10.0.0.0/8 and 192.168.0.0/16",
			expected: models.EntityMap{"network": "10.0.0.0/8"},
		},
		{
			name:     "empty text",
			text:     "   ",
			expected: models.EntityMap{},
		},
	}

	extractor := NewPatternExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractor.Extract(tt.text))
		})
	}
}

func TestPatternExtractor_CIDRAlwaysReported(t *testing.T) {
	texts := []string{
		"10.0.0.0/24",
		"network 10.0.0.0/24, please",
		"(192.168.100.0/22)",
		"create 1.2.3.4/32 now",
	}
	extractor := NewPatternExtractor()

	for _, text := range texts {
		got := extractor.Extract(text)
		assert.Contains(t, text, got[models.EntityNetwork], text)
		assert.NotEmpty(t, got[models.EntityNetwork], text)
		assert.False(t, got.Has(models.EntityIP), text)
	}
}

func TestPatternExtractor_IPWithoutCIDR(t *testing.T) {
	got := NewPatternExtractor().Extract("ping 8.8.8.8 from the grid")
	assert.Equal(t, "8.8.8.8", got[models.EntityIP])
	assert.False(t, got.Has(models.EntityNetwork))
	assert.False(t, got.Has(models.EntityFQDN))
}

func TestPatternExtractor_Name(t *testing.T) {
	var e Extractor = NewPatternExtractor()
	assert.Equal(t, "pattern", e.Name())
}
