package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Document field names.
const (
	fieldService     = "service"
	fieldServiceText = "service_text"
	fieldName        = "name"
	fieldNameText    = "name_text"
	fieldDescription = "description"
	fieldParams      = "params"
)

// maxServiceDocs bounds the lookup of a service's existing documents.
const maxServiceDocs = 10000

// OperationIndexConfig configures an OperationIndex.
type OperationIndexConfig struct {
	// Path stores the index on disk. Empty keeps it in memory.
	Path string
	// NameBoost weights operation-name matches (default: 3).
	NameBoost float64
	// ServiceBoost weights service-identity matches (default: 2).
	ServiceBoost float64
	Logger       *slog.Logger
}

// OperationDoc is one indexed operation.
type OperationDoc struct {
	ID          string
	Service     string
	Name        string
	Description string
	Params      []string
}

// OperationHit is a search result.
type OperationHit struct {
	Service     string  `json:"server_name"`
	Name        string  `json:"tool_name"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}

// OperationIndex is a bleve-backed keyword index of service operations.
type OperationIndex struct {
	mu           sync.RWMutex
	idx          bleve.Index
	nameBoost    float64
	serviceBoost float64
	fingerprints map[string]string
	logger       *slog.Logger
}

// NewOperationIndex opens or creates an index.
func NewOperationIndex(cfg OperationIndexConfig) (*OperationIndex, error) {
	m := buildMapping()

	var (
		idx bleve.Index
		err error
	)
	if cfg.Path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.Open(cfg.Path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(cfg.Path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open operation index: %w", err)
	}

	oi := &OperationIndex{
		idx:          idx,
		nameBoost:    cfg.NameBoost,
		serviceBoost: cfg.ServiceBoost,
		fingerprints: make(map[string]string),
		logger:       cfg.Logger,
	}
	if oi.nameBoost <= 0 {
		oi.nameBoost = 3
	}
	if oi.serviceBoost <= 0 {
		oi.serviceBoost = 2
	}
	if oi.logger == nil {
		oi.logger = slog.Default()
	}
	return oi, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	keyword := bleve.NewKeywordFieldMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldService, keyword)
	doc.AddFieldMappingsAt(fieldName, keyword)
	doc.AddFieldMappingsAt(fieldServiceText, text)
	doc.AddFieldMappingsAt(fieldNameText, text)
	doc.AddFieldMappingsAt(fieldDescription, text)
	doc.AddFieldMappingsAt(fieldParams, text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

// ParseOperations extracts operation documents from a serialized operation
// list. The list must be a JSON array; entries without a name are skipped.
// Parameter names are taken from inputSchema (or input_schema/parameters)
// properties.
func ParseOperations(service string, raw json.RawMessage) ([]OperationDoc, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("operations of %s: expected a JSON array of objects: %w", service, err)
	}

	seen := make(map[string]int, len(items))
	docs := make([]OperationDoc, 0, len(items))
	for _, item := range items {
		name, _ := item["name"].(string)
		if strings.TrimSpace(name) == "" {
			continue
		}
		description, _ := item["description"].(string)
		doc := OperationDoc{
			ID:          service + "/" + name,
			Service:     service,
			Name:        name,
			Description: description,
			Params:      paramNames(item),
		}
		if i, dup := seen[name]; dup {
			docs[i] = doc
			continue
		}
		seen[name] = len(docs)
		docs = append(docs, doc)
	}
	return docs, nil
}

func paramNames(item map[string]any) []string {
	for _, key := range []string{"inputSchema", "input_schema", "parameters"} {
		schema, ok := item[key].(map[string]any)
		if !ok {
			continue
		}
		props, ok := schema["properties"].(map[string]any)
		if !ok {
			continue
		}
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}
	return nil
}

// IndexService replaces the indexed operations of service.
func (oi *OperationIndex) IndexService(service string, operations json.RawMessage) error {
	docs, err := ParseOperations(service, operations)
	if err != nil {
		return err
	}
	fp := computeFingerprint(docs)

	oi.mu.Lock()
	defer oi.mu.Unlock()

	if oi.fingerprints[service] == fp {
		return nil
	}

	existing, err := oi.serviceDocIDs(service)
	if err != nil {
		return err
	}

	batch := oi.idx.NewBatch()
	for _, id := range existing {
		batch.Delete(id)
	}
	for _, doc := range docs {
		if err := batch.Index(doc.ID, toBleveDoc(doc)); err != nil {
			return fmt.Errorf("index operation %s: %w", doc.ID, err)
		}
	}
	if err := oi.idx.Batch(batch); err != nil {
		return fmt.Errorf("index operations of %s: %w", service, err)
	}
	oi.fingerprints[service] = fp
	oi.logger.Debug("operations indexed", "service", service, "count", len(docs), "replaced", len(existing))
	return nil
}

func (oi *OperationIndex) serviceDocIDs(service string) ([]string, error) {
	q := bleve.NewTermQuery(service)
	q.SetField(fieldService)
	req := bleve.NewSearchRequestOptions(q, maxServiceDocs, 0, false)
	res, err := oi.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("find operations of %s: %w", service, err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func toBleveDoc(doc OperationDoc) map[string]any {
	return map[string]any{
		fieldService:     doc.Service,
		fieldServiceText: splitIdentifier(doc.Service),
		fieldName:        doc.Name,
		fieldNameText:    splitIdentifier(doc.Name),
		fieldDescription: doc.Description,
		fieldParams:      strings.Join(splitAll(doc.Params), " "),
	}
}

// Search returns up to limit operations matching q.
func (oi *OperationIndex) Search(q string, limit int) ([]OperationHit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var bq query.Query
	if strings.TrimSpace(q) == "" {
		bq = bleve.NewMatchAllQuery()
	} else {
		name := bleve.NewMatchQuery(q)
		name.SetField(fieldNameText)
		name.SetBoost(oi.nameBoost)

		service := bleve.NewMatchQuery(q)
		service.SetField(fieldServiceText)
		service.SetBoost(oi.serviceBoost)

		desc := bleve.NewMatchQuery(q)
		desc.SetField(fieldDescription)

		params := bleve.NewMatchQuery(q)
		params.SetField(fieldParams)

		bq = bleve.NewDisjunctionQuery(name, service, desc, params)
	}

	req := bleve.NewSearchRequestOptions(bq, limit, 0, false)
	req.Fields = []string{fieldService, fieldName, fieldDescription}
	req.SortBy([]string{"-_score", "_id"})

	oi.mu.RLock()
	res, err := oi.idx.Search(req)
	oi.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search operations: %w", err)
	}

	hits := make([]OperationHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, OperationHit{
			Service:     stringField(h.Fields, fieldService),
			Name:        stringField(h.Fields, fieldName),
			Description: stringField(h.Fields, fieldDescription),
			Score:       h.Score,
		})
	}
	return hits, nil
}

// Len returns the number of indexed operations.
func (oi *OperationIndex) Len() (int, error) {
	n, err := oi.idx.DocCount()
	return int(n), err
}

// Close releases the index.
func (oi *OperationIndex) Close() error {
	return oi.idx.Close()
}

func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}

// splitIdentifier turns getWeather, get_weather and get-weather into
// "get weather" so identifiers match natural-language queries.
func splitIdentifier(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '/' || r == ':':
			b.WriteRune(' ')
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			b.WriteRune(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func splitAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = splitIdentifier(n)
	}
	return out
}
