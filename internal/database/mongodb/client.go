package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Client wraps a MongoDB client with startup retries and logging.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	config   Config
	logger   *slog.Logger
	mu       sync.RWMutex
	closed   bool
}

// New connects to MongoDB, retrying with exponential backoff.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config: cfg,
		logger: logger.With(slog.String("component", "mongodb")),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	opts := options.Client().
		ApplyURI(c.config.URI).
		SetMinPoolSize(c.config.MinPoolSize).
		SetMaxPoolSize(c.config.MaxPoolSize).
		SetConnectTimeout(c.config.ConnectTimeout).
		SetSocketTimeout(c.config.SocketTimeout).
		SetServerSelectionTimeout(c.config.ServerSelectionTimeout).
		SetRetryWrites(true).
		SetRetryReads(true).
		// open sub-documents such as step data decode as maps
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Debug("retrying connection",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				return fmt.Errorf("mongodb: connection cancelled: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			lastErr = err
			c.logger.Warn("connection attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			lastErr = err
			c.logger.Warn("ping failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			_ = client.Disconnect(ctx)
			continue
		}

		c.client = client
		c.database = client.Database(c.config.Database)
		c.logger.Info("connected to MongoDB", slog.String("database", c.config.Database))
		return nil
	}

	return fmt.Errorf("mongodb: failed to connect after %d attempts: %w",
		c.config.MaxRetries+1, lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.RetryBackoff << (attempt - 1)
	if d <= 0 || d > c.config.MaxRetryBackoff {
		d = c.config.MaxRetryBackoff
	}
	return d
}

// Database returns the configured database handle.
func (c *Client) Database() *mongo.Database {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.database
}

// Collection returns a collection from the configured database.
func (c *Client) Collection(name string) *mongo.Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.database == nil {
		return nil
	}
	return c.database.Collection(name)
}

// WorkflowCollection returns the collection named in the config.
func (c *Client) WorkflowCollection() *mongo.Collection {
	return c.Collection(c.config.Collection)
}

// Close disconnects from MongoDB. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.client == nil {
		c.closed = true
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongodb: disconnect failed: %w", err)
	}
	c.closed = true
	c.client = nil
	c.database = nil
	c.logger.Info("disconnected from MongoDB")
	return nil
}

// IsClosed returns true if the client has been closed.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) mongoClient() *mongo.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// Ping verifies the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	client := c.mongoClient()
	if client == nil {
		return fmt.Errorf("mongodb: client is closed")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb: ping failed: %w", err)
	}
	return nil
}
