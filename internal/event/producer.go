package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/buymeagift/giftlist/internal/domain"
	pkgkafka "github.com/buymeagift/giftlist/pkg/kafka"
	"github.com/buymeagift/giftlist/pkg/logger"
)

// Kafka topics for giftlist domain events.
const (
	TopicUserRegistered        = "giftlist.user.registered"
	TopicWishlistProductAdded  = "giftlist.wishlist.product_added"
	TopicWishlistNormalized    = "giftlist.wishlist.normalized"
	TopicPasswordResetRequests = "giftlist.user.password_reset_requested"
	TopicProductCreated        = "giftlist.product.created"
	TopicProductDeleted        = "giftlist.product.deleted"
)

// Aggregate types.
const (
	AggregateTypeUser     = "user"
	AggregateTypeWishlist = "wishlist"
	AggregateTypeProduct  = "product"
)

// Source identifies events originating from this service.
const Source = "giftlist"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ProductAddedData is the payload for a wishlist.product_added event.
type ProductAddedData struct {
	UserID     string `json:"user_id"`
	WishlistID string `json:"wishlist_id"`
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id"`
}

// WishlistNormalizedData is the payload for a wishlist.normalized event.
type WishlistNormalizedData struct {
	UserID          string   `json:"user_id"`
	RemovedProducts []string `json:"removed_products"`
}

// PasswordResetRequestedData is the payload for a password reset request.
type PasswordResetRequestedData struct {
	UserID string `json:"user_id"`
}

// ProductData is the payload for product.created and product.deleted events.
type ProductData struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	OwnerID    string `json:"owner_id"`
	Price      string `json:"price"`
	Currency   string `json:"currency,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes giftlist domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{ID: user.ID, Email: user.Email}
	return p.publish(ctx, TopicUserRegistered, user.ID, AggregateTypeUser, data)
}

// PublishProductAdded publishes a wishlist.product_added event.
func (p *Producer) PublishProductAdded(ctx context.Context, userID string, entry *domain.WishlistEntry, product *domain.Product) error {
	data := ProductAddedData{
		UserID:     userID,
		WishlistID: entry.WishlistID,
		ProductID:  entry.ProductID,
		CategoryID: product.CategoryID,
	}
	return p.publish(ctx, TopicWishlistProductAdded, entry.WishlistID, AggregateTypeWishlist, data)
}

// PublishWishlistNormalized publishes a wishlist.normalized event.
func (p *Producer) PublishWishlistNormalized(ctx context.Context, userID string, removed []string) error {
	data := WishlistNormalizedData{UserID: userID, RemovedProducts: removed}
	return p.publish(ctx, TopicWishlistNormalized, userID, AggregateTypeWishlist, data)
}

// PublishPasswordResetRequested publishes a password reset request event.
func (p *Producer) PublishPasswordResetRequested(ctx context.Context, userID string) error {
	data := PasswordResetRequestedData{UserID: userID}
	return p.publish(ctx, TopicPasswordResetRequests, userID, AggregateTypeUser, data)
}

// PublishProductCreated publishes a product.created event.
func (p *Producer) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductCreated, product.ID, AggregateTypeProduct, productData(product))
}

// PublishProductDeleted publishes a product.deleted event.
func (p *Producer) PublishProductDeleted(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductDeleted, product.ID, AggregateTypeProduct, productData(product))
}

func productData(product *domain.Product) ProductData {
	return ProductData{
		ID:         product.ID,
		Name:       product.Name,
		CategoryID: product.CategoryID,
		OwnerID:    product.OwnerID,
		Price:      product.Price.String(),
		Currency:   string(product.Currency),
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt = evt.WithCorrelationID(id)
	}
	if actor := logger.UserIDFromContext(ctx); actor != "" {
		evt = evt.WithMetadata("actor_id", actor)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)

	return nil
}
