package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
)

// MongoConfig selects the collection holding profile documents.
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// MongoStore keeps one document per subject, keyed by _id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("Connected to MongoDB profile store",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))

	return NewMongoStoreFromCollection(client, client.Database(cfg.Database).Collection(cfg.Collection), logger), nil
}

// NewMongoStoreFromCollection wraps an existing collection.
func NewMongoStoreFromCollection(client *mongo.Client, coll *mongo.Collection, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{client: client, coll: coll, logger: logger}
}

func (s *MongoStore) Get(ctx context.Context, subjectID string) (*profile.OptimizationProfile, error) {
	var p profile.OptimizationProfile
	err := s.coll.FindOne(ctx, bson.M{"_id": subjectID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, engerrors.NotFound("get_profile", subjectID)
	}
	if err != nil {
		return nil, engerrors.TransientStorage("get_profile", subjectID, err)
	}
	if p.OptimizationHistory == nil {
		p.OptimizationHistory = []profile.HistoryEntry{}
	}
	return &p, nil
}

func (s *MongoStore) Insert(ctx context.Context, p *profile.OptimizationProfile) error {
	_, err := s.coll.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return engerrors.Conflict("insert_profile", p.SubjectID)
	}
	if err != nil {
		return engerrors.TransientStorage("insert_profile", p.SubjectID, err)
	}
	return nil
}

// Update sets the last-writer-wins fields; $max keeps the check time and
// update time monotonic.
func (s *MongoStore) Update(ctx context.Context, p *profile.OptimizationProfile) error {
	return s.updateOne(ctx, "update_profile", p, updateDoc(p))
}

// UpdateWithHistory adds a $push of entries to the Update document, so one
// UpdateOne stores both.
func (s *MongoStore) UpdateWithHistory(ctx context.Context, p *profile.OptimizationProfile, entries ...profile.HistoryEntry) error {
	update := updateDoc(p)
	if len(entries) > 0 {
		update = append(update, bson.E{Key: "$push", Value: bson.M{
			"optimization_history": bson.M{"$each": entries},
		}})
	}
	return s.updateOne(ctx, "update_profile", p, update)
}

func (s *MongoStore) updateOne(ctx context.Context, op string, p *profile.OptimizationProfile, update bson.D) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": p.SubjectID}, update)
	if err != nil {
		return engerrors.TransientStorage(op, p.SubjectID, err)
	}
	if res.MatchedCount == 0 {
		return engerrors.NotFound(op, p.SubjectID)
	}
	return nil
}

func updateDoc(p *profile.OptimizationProfile) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "device_info", Value: p.DeviceInfo},
			{Key: "performance_settings", Value: p.PerformanceSettings},
			{Key: "ux_settings", Value: p.UXSettings},
			{Key: "performance_metrics", Value: p.PerformanceMetrics},
			{Key: "adaptive_behavior", Value: p.AdaptiveBehavior},
			{Key: "mobile_features", Value: p.MobileFeatures},
		}},
		{Key: "$max", Value: bson.D{
			{Key: "last_optimization_check", Value: p.LastOptimizationCheck},
			{Key: "updated_at", Value: p.UpdatedAt},
		}},
	}
}

// AppendHistory uses $push so concurrent writers never drop entries.
func (s *MongoStore) AppendHistory(ctx context.Context, subjectID string, entries ...profile.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	update := bson.M{
		"$push": bson.M{
			"optimization_history": bson.M{"$each": entries},
		},
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": subjectID}, update)
	if err != nil {
		return engerrors.TransientStorage("append_history", subjectID, err)
	}
	if res.MatchedCount == 0 {
		return engerrors.NotFound("append_history", subjectID)
	}
	return nil
}

func (s *MongoStore) SaveFeedback(ctx context.Context, subjectID string, fb profile.Feedback, comment *profile.FeedbackComment) error {
	set := bson.D{{Key: "feedback.last_submitted_at", Value: fb.LastSubmittedAt}}
	if fb.PerformanceRating != nil {
		set = append(set, bson.E{Key: "feedback.performance_rating", Value: *fb.PerformanceRating})
	}
	if fb.UsabilityRating != nil {
		set = append(set, bson.E{Key: "feedback.usability_rating", Value: *fb.UsabilityRating})
	}
	if fb.BatteryRating != nil {
		set = append(set, bson.E{Key: "feedback.battery_rating", Value: *fb.BatteryRating})
	}

	update := bson.D{{Key: "$set", Value: set}}
	if comment != nil {
		update = append(update, bson.E{Key: "$push", Value: bson.M{"feedback.comments": comment}})
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": subjectID}, update)
	if err != nil {
		return engerrors.TransientStorage("save_feedback", subjectID, err)
	}
	if res.MatchedCount == 0 {
		return engerrors.NotFound("save_feedback", subjectID)
	}
	return nil
}

func (s *MongoStore) ForEach(ctx context.Context, fn func(*profile.OptimizationProfile) error) error {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return engerrors.TransientStorage("list_profiles", "", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var p profile.OptimizationProfile
		if err := cursor.Decode(&p); err != nil {
			s.logger.Warn("Skipping undecodable profile document", zap.Error(err))
			continue
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return engerrors.TransientStorage("list_profiles", "", err)
	}
	return nil
}

func (s *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, engerrors.TransientStorage("count_profiles", "", err)
	}
	return int(n), nil
}

// Ping checks connectivity for the readiness endpoint.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
