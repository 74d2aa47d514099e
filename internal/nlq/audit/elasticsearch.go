package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"wapi-nlq/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "nlq-queries"

// IndexMapping is applied when the analytics index is first created.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":         {"type": "keyword"},
      "query":      {"type": "text"},
      "intent":     {"type": "keyword"},
      "confidence": {"type": "float"},
      "strategy":   {"type": "keyword"},
      "escalated":  {"type": "boolean"},
      "entities":   {"type": "object"},
      "status":     {"type": "keyword"},
      "detail":     {"type": "object", "enabled": false},
      "createdAt":  {"type": "date"}
    }
  }
}`

// ElasticsearchSink indexes one document per query, keyed by query id.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Index() string { return s.index }

func (s *ElasticsearchSink) Write(ctx context.Context, rec models.QueryRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index %s: %s", s.index, res.Status())
	}
	return nil
}
