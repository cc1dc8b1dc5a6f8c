package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string

	mu         sync.Mutex
	cursor     *mongo.Cursor
	lastAccess time.Time
	fetched    int
}

// MongoQuery is the JSON structure accepted by the Mongo connector's Execute.
type MongoQuery struct {
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter,omitempty"`
	Sort       []SortKey      `json:"sort,omitempty"`
}

// SortKey is one sort criterion. Keys apply in slice order.
type SortKey struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"` // 1 ascending, -1 descending
}

// Encode renders the query as the JSON string Execute expects.
func (q MongoQuery) Encode() (string, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encode mongo query: %w", err)
	}
	return string(b), nil
}

func newMongoConnector(uri string) (*mongoConnector, error) {
	dbName := mongoDatabaseName(uri)

	log.Debug().Str("uri", redactURI(uri)).Str("database", dbName).Msg("mongo: connecting")

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: dbName}, nil
}

// mongoDatabaseName extracts the database from the URI path
// (mongodb+srv://user:pw@host/DB_NAME?params), defaulting to "test".
func mongoDatabaseName(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		if strings.HasPrefix(rest, prefix) {
			rest = rest[len(prefix):]
			break
		}
	}
	if atIdx := strings.LastIndex(rest, "@"); atIdx != -1 {
		rest = rest[atIdx+1:]
	}
	if slashIdx := strings.Index(rest, "/"); slashIdx != -1 {
		pathPart := rest[slashIdx+1:]
		if qIdx := strings.Index(pathPart, "?"); qIdx != -1 {
			pathPart = pathPart[:qIdx]
		}
		if pathPart != "" {
			return pathPart
		}
	}
	return "test"
}

func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}

// unmarshalEJSON re-encodes a map[string]any field and uses bson.UnmarshalExtJSON
// to convert MongoDB Extended JSON types ($oid, $date, $numberLong, etc.) to BSON.
func unmarshalEJSON(field map[string]any) any {
	if field == nil {
		return nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return field
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		log.Warn().Err(err).Msg("mongo: extended json parse")
		return field
	}
	return doc
}

func (m *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)

	if fetchSize <= 0 {
		fetchSize = 50
	}

	var mq MongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}

	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	opts := options.Find()
	if len(mq.Sort) > 0 {
		sortDoc, err := sortDocument(mq.Sort)
		if err != nil {
			return nil, err
		}
		opts.SetSort(sortDoc)
	}
	opts.SetBatchSize(int32(fetchSize))

	var filter any = bson.D{}
	if mq.Filter != nil {
		filter = unmarshalEJSON(mq.Filter)
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}

	m.cursor = cursor
	m.fetched = 0
	m.lastAccess = time.Now()

	return m.fetchMongoBatchLocked(ctx, fetchSize)
}

// sortDocument turns sort keys into a bson.D, keeping their priority order.
func sortDocument(keys []SortKey) (bson.D, error) {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		if k.Field == "" {
			return nil, fmt.Errorf("sort key without field")
		}
		dir := k.Direction
		switch dir {
		case 0:
			dir = 1
		case 1, -1:
		default:
			return nil, fmt.Errorf("sort %s: direction must be 1 or -1, got %d", k.Field, k.Direction)
		}
		d = append(d, bson.E{Key: k.Field, Value: dir})
	}
	return d, nil
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, fmt.Errorf("no active cursor: execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}
	m.lastAccess = time.Now()
	return m.fetchMongoBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchMongoBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for i := 0; i < fetchSize; i++ {
		if !m.cursor.Next(ctx) {
			break
		}
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := m.cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	m.fetched += len(docs)
	log.Debug().Int("batch", len(docs)).Int("total", m.fetched).Msg("mongo: fetched")

	colSet := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !colSet[elem.Key] {
				colSet[elem.Key] = true
				columns = append(columns, elem.Key)
			}
		}
	}
	// _id first, then alphabetical
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i] == "_id" {
			return true
		}
		if columns[j] == "_id" {
			return false
		}
		return columns[i] < columns[j]
	})

	var rows [][]any
	for _, doc := range docs {
		row := make([]any, len(columns))
		docMap := make(map[string]any, len(doc))
		for _, elem := range doc {
			docMap[elem.Key] = elem.Value
		}
		for j, col := range columns {
			if v, ok := docMap[col]; ok {
				row[j] = normalizeBSON(v)
			}
		}
		rows = append(rows, row)
	}

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.fetched,
		HasMore:      hasMore,
	}, nil
}

// normalizeBSON converts driver types into plain Go values the schema layer
// understands.
func normalizeBSON(v any) any {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC()
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeBSON(e)
		}
		return out
	case bson.Decimal128:
		return val.String()
	default:
		return val
	}
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)

	collections, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(collections)

	schema := &SchemaInfo{}
	for _, collName := range collections {
		// Sample one document to extract field names
		coll := db.Collection(collName)
		cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetLimit(1))
		if err != nil {
			schema.Tables = append(schema.Tables, TableInfo{Name: collName})
			continue
		}

		var cols []ColumnInfo
		if cursor.Next(ctx) {
			var doc bson.D
			if cursor.Decode(&doc) == nil {
				for _, e := range doc {
					cols = append(cols, ColumnInfo{Name: e.Key, Type: fmt.Sprintf("%T", e.Value)})
				}
			}
		}
		cursor.Close(ctx)

		schema.Tables = append(schema.Tables, TableInfo{Name: collName, Columns: cols})
	}

	return schema, nil
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
