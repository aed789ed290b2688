package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"foodbackend/internal/models"
	"foodbackend/internal/notification"
)

type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(UsersCollection)}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	res, err := r.coll.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	err := r.coll.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UpdateProfile sets the non-nil fields and returns the updated user.
func (r *UserRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, displayName, phoneNumber *string) (models.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if displayName != nil {
		set["displayName"] = *displayName
	}
	if phoneNumber != nil {
		set["phoneNumber"] = *phoneNumber
	}
	return r.update(ctx, id, set)
}

func (r *UserRepository) SaveAddresses(ctx context.Context, id primitive.ObjectID, addresses []models.Address) (models.User, error) {
	return r.update(ctx, id, bson.M{
		"addresses": addresses,
		"updatedAt": time.Now().UTC(),
	})
}

func (r *UserRepository) update(ctx context.Context, id primitive.ObjectID, set bson.M) (models.User, error) {
	var user models.User
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// Recipient implements notification.RecipientLookup.
func (r *UserRepository) Recipient(ctx context.Context, userID string) (notification.Recipient, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return notification.Recipient{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	user, err := r.FindByID(ctx, id)
	if err != nil {
		return notification.Recipient{}, err
	}
	return notification.Recipient{
		Name:  user.DisplayName,
		Phone: user.PhoneNumber,
		Email: user.Email,
	}, nil
}
