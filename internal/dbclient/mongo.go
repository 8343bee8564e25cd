package dbclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"intake/internal/domain"
	"intake/internal/etl"
)

const mongoInsertBatch = 1000

// mongoWriter loads partitions into a collection. MongoDB has no
// transactional drop, so a failed load leaves the collection partial.
type mongoWriter struct {
	client *mongo.Client
	dbName string
}

// buildMongoURI constructs a connection URI from a DatabaseConnection.
func buildMongoURI(conn *domain.DatabaseConnection, password string) string {
	// If host is already a full connection string (Atlas mongodb+srv:// or
	// standard mongodb://), use it directly.
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		// Replace <password> placeholder commonly found in Atlas connection strings
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
		return uri
	}

	port := conn.Port
	if port == 0 {
		port = 27017
	}
	var uri string
	if conn.Username != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, password, conn.Host, port)
	} else {
		uri = fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
	}
	if len(conn.Params) > 0 {
		params := make([]string, 0, len(conn.Params))
		for k, v := range conn.Params {
			params = append(params, k+"="+v)
		}
		sort.Strings(params)
		uri += "/?" + strings.Join(params, "&")
	}
	return uri
}

func newMongoWriter(conn *domain.DatabaseConnection, password string) (*mongoWriter, error) {
	dbName := conn.Database
	if dbName == "" {
		dbName = "planet_pulse"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(buildMongoURI(conn, password)))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoWriter{client: client, dbName: dbName}, nil
}

func (m *mongoWriter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoWriter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoWriter) ReplaceTable(ctx context.Context, table string, schema *etl.Schema, records []etl.Record) (int, error) {
	coll := m.client.Database(m.dbName).Collection(table)
	if err := coll.Drop(ctx); err != nil {
		return 0, fmt.Errorf("drop collection: %w", err)
	}

	written := 0
	for start := 0; start < len(records); start += mongoInsertBatch {
		end := min(start+mongoInsertBatch, len(records))
		docs := make([]any, 0, end-start)
		for i, rec := range records[start:end] {
			doc, err := toDocument(schema, rec)
			if err != nil {
				return written, fmt.Errorf("row %d: %w", start+i, err)
			}
			docs = append(docs, doc)
		}
		res, err := coll.InsertMany(ctx, docs)
		if err != nil {
			return written, fmt.Errorf("insert documents %d-%d: %w", start, end-1, err)
		}
		written += len(res.InsertedIDs)
	}

	if hasField(schema, etl.DateKeyField) {
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: etl.DateKeyField, Value: 1}}})
		if err != nil {
			return written, fmt.Errorf("create index: %w", err)
		}
	}
	return written, nil
}

// toDocument keeps schema order so documents read like table rows.
func toDocument(schema *etl.Schema, rec etl.Record) (bson.D, error) {
	doc := make(bson.D, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		v, ok := rec.Data[f.Name]
		if !ok {
			return nil, &etl.MissingFieldError{Field: f.Name}
		}
		doc = append(doc, bson.E{Key: f.Name, Value: v})
	}
	return doc, nil
}

func hasField(schema *etl.Schema, name string) bool {
	for _, f := range schema.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
