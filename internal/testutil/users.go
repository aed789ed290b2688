package testutil

import (
	"context"
	"math"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"foodbackend/internal/database"
	"foodbackend/internal/models"
	"foodbackend/internal/notification"
)

// UserStore keeps accounts in memory with the same not-found and duplicate
// email errors as the Mongo repository.
type UserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[primitive.ObjectID]models.User)}
}

func (s *UserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return database.ErrEmailTaken
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, database.ErrUserNotFound
}

func (s *UserStore) FindByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, database.ErrUserNotFound
	}
	user.Addresses = append([]models.Address(nil), user.Addresses...)
	return user, nil
}

func (s *UserStore) UpdateProfile(_ context.Context, id primitive.ObjectID, displayName, phoneNumber *string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, database.ErrUserNotFound
	}
	if displayName != nil {
		user.DisplayName = *displayName
	}
	if phoneNumber != nil {
		user.PhoneNumber = *phoneNumber
	}
	s.users[id] = user
	return user, nil
}

func (s *UserStore) SaveAddresses(_ context.Context, id primitive.ObjectID, addresses []models.Address) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, database.ErrUserNotFound
	}
	user.Addresses = append([]models.Address(nil), addresses...)
	s.users[id] = user
	return user, nil
}

// Recipient makes the store usable as a notification.RecipientLookup.
func (s *UserStore) Recipient(ctx context.Context, userID string) (notification.Recipient, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return notification.Recipient{}, err
	}
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return notification.Recipient{}, err
	}
	return notification.Recipient{Name: user.DisplayName, Phone: user.PhoneNumber, Email: user.Email}, nil
}

// RatingStore keeps ratings in memory. Targets must be registered with
// AddTarget before they can be rated.
type RatingStore struct {
	mu      sync.Mutex
	ratings []models.Rating
	targets map[primitive.ObjectID]bool
}

func NewRatingStore() *RatingStore {
	return &RatingStore{targets: make(map[primitive.ObjectID]bool)}
}

func (s *RatingStore) AddTarget(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[id] = true
}

func (s *RatingStore) Create(_ context.Context, rating *models.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, target := range []*primitive.ObjectID{rating.RestaurantID, rating.MenuItemID} {
		if target != nil && !s.targets[*target] {
			return database.ErrTargetNotFound
		}
	}
	rating.ID = primitive.NewObjectID()
	s.ratings = append(s.ratings, *rating)
	return nil
}

func (s *RatingStore) Summary(_ context.Context, restaurantID, menuItemID *primitive.ObjectID) (database.RatingSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum, total := 0, 0
	for _, r := range s.ratings {
		if restaurantID != nil && (r.RestaurantID == nil || *r.RestaurantID != *restaurantID) {
			continue
		}
		if menuItemID != nil && (r.MenuItemID == nil || *r.MenuItemID != *menuItemID) {
			continue
		}
		sum += r.Rating
		total++
	}
	if total == 0 {
		return database.RatingSummary{}, nil
	}
	return database.RatingSummary{
		Average: math.Round(float64(sum)/float64(total)*10) / 10,
		Total:   total,
	}, nil
}

// ListByRestaurant returns newest first, matching the repository.
func (s *RatingStore) ListByRestaurant(_ context.Context, restaurantID primitive.ObjectID) ([]models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]models.Rating, 0)
	for i := len(s.ratings) - 1; i >= 0; i-- {
		r := s.ratings[i]
		if r.RestaurantID != nil && *r.RestaurantID == restaurantID {
			list = append(list, r)
		}
	}
	return list, nil
}
