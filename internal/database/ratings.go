package database

import (
	"context"
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"foodbackend/internal/models"
)

type RatingSummary struct {
	Average float64 `json:"average"`
	Total   int     `json:"total"`
}

type RatingRepository struct {
	db *mongo.Database
}

func NewRatingRepository(db *mongo.Database) *RatingRepository {
	return &RatingRepository{db: db}
}

// Create stores the rating and recomputes the rated restaurant's and menu
// item's average in the same transaction.
func (r *RatingRepository) Create(ctx context.Context, rating *models.Rating) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if rating.RestaurantID != nil {
			if err := r.ensureExists(sessCtx, RestaurantsCollection, *rating.RestaurantID); err != nil {
				return nil, err
			}
		}
		if rating.MenuItemID != nil {
			if err := r.ensureExists(sessCtx, MenuItemsCollection, *rating.MenuItemID); err != nil {
				return nil, err
			}
		}

		res, err := r.db.Collection(RatingsCollection).InsertOne(sessCtx, rating)
		if err != nil {
			return nil, err
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			rating.ID = id
		}

		if rating.RestaurantID != nil {
			if err := r.recompute(sessCtx, RestaurantsCollection, "restaurant", *rating.RestaurantID); err != nil {
				return nil, err
			}
		}
		if rating.MenuItemID != nil {
			if err := r.recompute(sessCtx, MenuItemsCollection, "menuItem", *rating.MenuItemID); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *RatingRepository) ensureExists(ctx context.Context, collection string, id primitive.ObjectID) error {
	err := r.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrTargetNotFound
	}
	return err
}

func (r *RatingRepository) recompute(ctx context.Context, collection, field string, id primitive.ObjectID) error {
	summary, err := r.summarize(ctx, bson.M{field: id})
	if err != nil {
		return err
	}
	_, err = r.db.Collection(collection).UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"rating":     summary.Average,
			"numReviews": summary.Total,
		},
	})
	return err
}

// Summary averages the ratings of one restaurant or menu item, or every
// rating when both ids are nil.
func (r *RatingRepository) Summary(ctx context.Context, restaurantID, menuItemID *primitive.ObjectID) (RatingSummary, error) {
	match := bson.M{}
	if restaurantID != nil {
		match["restaurant"] = *restaurantID
	}
	if menuItemID != nil {
		match["menuItem"] = *menuItemID
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.summarize(ctx, match)
}

func (r *RatingRepository) summarize(ctx context.Context, match bson.M) (RatingSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"average": bson.M{"$avg": "$rating"},
			"total":   bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.db.Collection(RatingsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return RatingSummary{}, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Average float64 `bson:"average"`
		Total   int     `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return RatingSummary{}, err
	}
	if len(rows) == 0 {
		return RatingSummary{}, nil
	}
	return RatingSummary{
		Average: math.Round(rows[0].Average*10) / 10,
		Total:   rows[0].Total,
	}, nil
}

// ListByRestaurant returns a restaurant's ratings, newest first.
func (r *RatingRepository) ListByRestaurant(ctx context.Context, restaurantID primitive.ObjectID) ([]models.Rating, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := r.db.Collection(RatingsCollection).Find(ctx,
		bson.M{"restaurant": restaurantID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := make([]models.Rating, 0)
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}
