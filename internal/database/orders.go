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
	"foodbackend/internal/orders"
)

// OrderRepository implements orders.Store on the orders collection. Every
// conditional method is a single FindOneAndUpdate whose filter carries the
// expected current state.
type OrderRepository struct {
	coll *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(OrdersCollection)}
}

func (r *OrderRepository) Insert(ctx context.Context, order *models.Order) error {
	res, err := r.coll.InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return orders.ErrDuplicateOrderNumber
	}
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = id
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *OrderRepository) FindByPaymentID(ctx context.Context, paymentID string) (models.Order, error) {
	return r.findOne(ctx, bson.M{"paymentId": paymentID})
}

func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (models.Order, error) {
	return r.findOne(ctx, bson.M{"razorpayOrderId": gatewayOrderID})
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (models.Order, error) {
	var order models.Order
	err := r.coll.FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, orders.ErrNotFound
	}
	return order, err
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.coll.Find(ctx, bson.M{"user": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := make([]models.Order, 0)
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus) (models.Order, bool, error) {
	return r.conditionalUpdate(ctx, id,
		bson.M{"status": from},
		bson.M{"status": to},
	)
}

func (r *OrderRepository) SetPaymentStatus(ctx context.Context, id primitive.ObjectID, from []models.PaymentStatus, to models.PaymentStatus, change orders.PaymentChange) (models.Order, bool, error) {
	expect := bson.M{"paymentStatus": bson.M{"$in": from}}
	set := bson.M{"paymentStatus": to}
	applyPaymentChange(expect, set, change)
	return r.conditionalUpdate(ctx, id, expect, set)
}

func (r *OrderRepository) AttachPaymentID(ctx context.Context, id primitive.ObjectID, change orders.PaymentChange) (models.Order, bool, error) {
	if change.PaymentID == nil {
		return models.Order{}, false, errors.New("attach payment: payment id is required")
	}
	expect := bson.M{"paymentStatus": models.PaymentPaid, "paymentId": nil}
	set := bson.M{}
	applyPaymentChange(expect, set, change)
	return r.conditionalUpdate(ctx, id, expect, set)
}

// applyPaymentChange adds the gateway order guard to the filter and the
// optional fields to the update. The nil branch also matches a missing
// razorpayOrderId, and such orders get linked by the same write.
func applyPaymentChange(expect, set bson.M, change orders.PaymentChange) {
	if change.PaymentID != nil {
		set["paymentId"] = *change.PaymentID
	}
	if change.GatewayOrderID == "" {
		return
	}
	expect["$or"] = bson.A{
		bson.M{"razorpayOrderId": nil},
		bson.M{"razorpayOrderId": change.GatewayOrderID},
	}
	set["razorpayOrderId"] = change.GatewayOrderID
}

func (r *OrderRepository) SetGatewayOrderID(ctx context.Context, id primitive.ObjectID, gatewayOrderID string) (models.Order, error) {
	order, _, err := r.conditionalUpdate(ctx, id, bson.M{}, bson.M{"razorpayOrderId": gatewayOrderID})
	return order, err
}

// conditionalUpdate applies set when the order matches expect. When it does
// not, the current document is returned with changed=false.
func (r *OrderRepository) conditionalUpdate(ctx context.Context, id primitive.ObjectID, expect, set bson.M) (models.Order, bool, error) {
	filter := bson.M{"_id": id}
	for k, v := range expect {
		filter[k] = v
	}
	set["updatedAt"] = time.Now().UTC()

	var order models.Order
	err := r.coll.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err == nil {
		return order, true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return models.Order{}, false, orders.ErrGatewayOrderLinked
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, false, err
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, false, err
	}
	return current, false, nil
}
