package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

type MongoConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

func (c *MongoConfig) ApplyDefaults() {
	if c.Database == "" {
		c.Database = "geiger"
	}
	if c.Collection == "" {
		c.Collection = "measurements"
	}
}

type documentWriter interface {
	insert(ctx context.Context, doc any) error
	close(ctx context.Context) error
}

type mongoCollection struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func (c mongoCollection) insert(ctx context.Context, doc any) error {
	_, err := c.collection.InsertOne(ctx, doc)
	return err
}

func (c mongoCollection) close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Mongo keeps measurements in a time-series collection keyed on timestamp.
type Mongo struct {
	lifecycle
	w documentWriter
}

func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if !cfg.Enabled {
		return &Mongo{}, nil
	}
	cfg.ApplyDefaults()
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongodb: uri is required")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(cfg.Database)
	tsOptions := options.CreateCollection().SetTimeSeriesOptions(
		options.TimeSeries().
			SetTimeField("timestamp").
			SetGranularity("seconds"),
	)
	// fails with NamespaceExists on every start after the first
	_ = db.CreateCollection(ctx, cfg.Collection, tsOptions)

	return newMongo(mongoCollection{client: client, collection: db.Collection(cfg.Collection)}), nil
}

func newMongo(w documentWriter) *Mongo {
	s := &Mongo{w: w}
	s.enabled.Store(true)
	return s
}

func (s *Mongo) Name() string { return "mongodb" }

func (s *Mongo) Update(ctx context.Context, m domain.Measurement) error {
	if err := s.w.insert(ctx, m); err != nil {
		return sinkErr(s.Name(), "insert: %v", err)
	}
	return nil
}

func (s *Mongo) Close() error {
	if !s.disable() {
		return nil
	}
	if s.w == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.w.close(ctx)
}

var _ ports.Sink = (*Mongo)(nil)
