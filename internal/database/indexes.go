package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureUserIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(UsersCollection).Indexes()

	emailIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetName("email_unique").
			SetUnique(true),
	}

	log.Println("EnsureUserIndexes: creating email_unique index")
	_, err := indexes.CreateOne(ctx, emailIndex)
	if err != nil {
		log.Println("EnsureUserIndexes: email index error:", err)
		return err
	}
	log.Println("EnsureUserIndexes: email_unique index created")
	return nil
}

func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(OrdersCollection).Indexes()

	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "orderNumber", Value: 1}},
			Options: options.Index().
				SetName("orderNumber_unique").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_createdAt_index"),
		},
		{
			Keys: bson.D{{Key: "paymentId", Value: 1}},
			Options: options.Index().
				SetName("paymentId_index").
				SetPartialFilterExpression(bson.M{"paymentId": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "razorpayOrderId", Value: 1}},
			Options: options.Index().
				SetName("razorpayOrderId_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"razorpayOrderId": bson.M{"$type": "string"}}),
		},
	}

	log.Println("EnsureOrderIndexes: creating order indexes")
	names, err := indexes.CreateMany(ctx, models)
	if err != nil {
		log.Println("EnsureOrderIndexes: order index error:", err)
		return err
	}
	log.Println("EnsureOrderIndexes: created", names)
	return nil
}

func EnsureCatalogIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	menuIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "restaurant", Value: 1}},
		Options: options.Index().SetName("restaurant_index"),
	}

	log.Println("EnsureCatalogIndexes: creating menu item restaurant_index")
	if _, err := db.Collection(MenuItemsCollection).Indexes().CreateOne(ctx, menuIndex); err != nil {
		log.Println("EnsureCatalogIndexes: menu item index error:", err)
		return err
	}
	log.Println("EnsureCatalogIndexes: restaurant_index created")
	return nil
}

func EnsureRatingIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(RatingsCollection).Indexes()

	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "restaurant", Value: 1}},
			Options: options.Index().
				SetName("restaurant_index").
				SetPartialFilterExpression(bson.M{"restaurant": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "menuItem", Value: 1}},
			Options: options.Index().
				SetName("menuItem_index").
				SetPartialFilterExpression(bson.M{"menuItem": bson.M{"$exists": true}}),
		},
	}

	log.Println("EnsureRatingIndexes: creating rating indexes")
	if _, err := indexes.CreateMany(ctx, models); err != nil {
		log.Println("EnsureRatingIndexes: rating index error:", err)
		return err
	}
	log.Println("EnsureRatingIndexes: rating indexes created")
	return nil
}

// EnsureIndexes creates every index the API relies on. Failures are logged
// and the first one is returned.
func EnsureIndexes(db *mongo.Database) error {
	var first error
	for _, ensure := range []func(*mongo.Database) error{
		EnsureUserIndexes,
		EnsureOrderIndexes,
		EnsureCatalogIndexes,
		EnsureRatingIndexes,
	} {
		if err := ensure(db); err != nil && first == nil {
			first = err
		}
	}
	return first
}
