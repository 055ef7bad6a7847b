package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/types"
)

// MongoArchive writes finished records to a MongoDB collection.
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoArchive connects to the configured MongoDB instance.
func NewMongoArchive(cfg *config.ArchiveConfig, logger *slog.Logger) (*MongoArchive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoArchive{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger.With("component", "mongo_archive"),
	}, nil
}

// Store inserts one record as a flat document. Decimal amounts are
// stored as strings to avoid lossy float round-trips.
func (a *MongoArchive) Store(ctx context.Context, rec *types.ProductRecord) error {
	doc := map[string]any{
		"request_id": rec.RequestID,
		"source_url": rec.SourceURL,
		"final_url":  rec.FinalURL,
		"platform":   string(rec.Platform),
		"transport":  string(rec.Transport),
		"complete":   rec.Complete,
		"fetched_at": rec.FetchedAt,
		"title":      rec.Title,
	}
	if rec.Price != nil {
		doc["price_amount"] = rec.Price.Original.Amount.String()
		doc["price_currency"] = rec.Price.Original.Currency
		if rec.Price.Converted != nil {
			doc["converted_amount"] = rec.Price.Converted.Amount.String()
			doc["converted_currency"] = rec.Price.Converted.Currency
		}
	}
	if len(rec.Images) > 0 {
		doc["images"] = rec.Images
	}
	if rec.Category != "" {
		doc["category"] = rec.Category
	}
	if len(rec.Breadcrumbs) > 0 {
		doc["breadcrumbs"] = rec.Breadcrumbs
	}
	if len(rec.Variants) > 0 {
		doc["variants"] = rec.Variants
	}
	if len(rec.Specs) > 0 {
		doc["specs"] = rec.Specs
	}
	if rec.Description != "" {
		doc["description"] = rec.Description
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}
	a.logger.Debug("record archived", "request_id", rec.RequestID)
	return nil
}

// Close disconnects the client.
func (a *MongoArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
