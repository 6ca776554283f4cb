package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cataloghq/catalog-backend/internal/logger"
)

// searchSyncChunkSize is how many entity codes ride in one downstream
// message; whatever maintains the search index consumes them asynchronously.
const searchSyncChunkSize = 50

// SearchSyncMessage is the contract toward the search-index maintainer. The
// pipeline does not know or care how the index itself is structured.
type SearchSyncMessage struct {
	EntityCodes []string  `json:"entity_codes"`
	Priority    string    `json:"priority"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// SearchSyncPublisher is constructed once and injected into the worker; there
// is deliberately no module-level registry.
type SearchSyncPublisher interface {
	EnqueueEntitySync(ctx context.Context, entityCodes []string) error
	Close() error
}

type redisSearchSync struct {
	log   *logger.Logger
	rdb   *goredis.Client
	queue string
}

func NewRedisSearchSync(log *logger.Logger) (SearchSyncPublisher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	queue := strings.TrimSpace(os.Getenv("REDIS_SEARCH_SYNC_QUEUE"))
	if queue == "" {
		queue = "catalog:search_sync"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisSearchSync{
		log:   log.With("service", "SearchSyncPublisher"),
		rdb:   rdb,
		queue: queue,
	}, nil
}

// chunkEntityCodes splits the codes into fixed-size sub-batches so a huge
// import does not become one huge indexing message.
func chunkEntityCodes(entityCodes []string, size int) [][]string {
	if len(entityCodes) == 0 || size <= 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(entityCodes)+size-1)/size)
	for start := 0; start < len(entityCodes); start += size {
		end := start + size
		if end > len(entityCodes) {
			end = len(entityCodes)
		}
		chunks = append(chunks, entityCodes[start:end])
	}
	return chunks
}

func (s *redisSearchSync) EnqueueEntitySync(ctx context.Context, entityCodes []string) error {
	if len(entityCodes) == 0 {
		return nil
	}
	now := time.Now()
	for _, chunk := range chunkEntityCodes(entityCodes, searchSyncChunkSize) {
		msg := SearchSyncMessage{
			EntityCodes: chunk,
			Priority:    "high",
			EnqueuedAt:  now,
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := s.rdb.LPush(ctx, s.queue, raw).Err(); err != nil {
			return fmt.Errorf("enqueue search sync: %w", err)
		}
	}
	s.log.Debug("Enqueued search sync", "entities", len(entityCodes))
	return nil
}

func (s *redisSearchSync) Close() error {
	return s.rdb.Close()
}

// NopSearchSync drops messages; used when redis is not configured and in
// tests.
type NopSearchSync struct{}

func (NopSearchSync) EnqueueEntitySync(ctx context.Context, entityCodes []string) error { return nil }
func (NopSearchSync) Close() error                                                      { return nil }
