package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"foodbackend/internal/models"
	"foodbackend/internal/orders"
)

// CatalogRepository implements orders.Catalog on the restaurants and
// menuitems collections.
type CatalogRepository struct {
	restaurants *mongo.Collection
	menuItems   *mongo.Collection
}

func NewCatalogRepository(db *mongo.Database) *CatalogRepository {
	return &CatalogRepository{
		restaurants: db.Collection(RestaurantsCollection),
		menuItems:   db.Collection(MenuItemsCollection),
	}
}

func (r *CatalogRepository) Restaurant(ctx context.Context, id primitive.ObjectID) (models.Restaurant, error) {
	var restaurant models.Restaurant
	err := r.restaurants.FindOne(ctx, bson.M{"_id": id}).Decode(&restaurant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Restaurant{}, orders.ErrRestaurantNotFound
	}
	return restaurant, err
}

func (r *CatalogRepository) MenuItems(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.MenuItem, error) {
	out := make(map[primitive.ObjectID]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := r.menuItems.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []models.MenuItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}
