// Package redis provides a shared request log for rail guards running on
// several instances. Entries live in one sorted set scored by microsecond timestamp.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"go.uber.org/zap"
)

// retention covers the longest guard window (a calendar month) plus slack
const retention = 32 * 24 * time.Hour

// appendScript appends atomically with a score strictly greater than the current maximum.
// KEYS[1] = sorted set key
// ARGV[1] = requested score (unix microseconds)
// ARGV[2] = member
// ARGV[3] = trim scores below this value
var appendScript = goredis.NewScript(`
local key = KEYS[1]
local score = tonumber(ARGV[1])

local last = redis.call("ZREVRANGE", key, 0, 0, "WITHSCORES")
if last[2] then
    local lastScore = tonumber(last[2])
    if score <= lastScore then
        score = lastScore + 1
    end
end

redis.call("ZADD", key, score, ARGV[2])
redis.call("ZREMRANGEBYSCORE", key, "-inf", "(" .. ARGV[3])
return tostring(score)
`)

// RequestLogRepository implements repositories.RequestLogRepository on Redis
type RequestLogRepository struct {
	client goredis.UniversalClient
	key    string
	logger *zap.Logger
}

// NewClient parses a redis:// URL into a client
func NewClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// NewRequestLogRepository creates a Redis-backed request log under keyPrefix
func NewRequestLogRepository(client goredis.UniversalClient, keyPrefix string, logger *zap.Logger) repositories.RequestLogRepository {
	return &RequestLogRepository{
		client: client,
		key:    keyPrefix + ":request_log",
		logger: logger,
	}
}

// Append adds an entry; the stored timestamp may be bumped to keep the log strictly ordered
func (r *RequestLogRepository) Append(ctx context.Context, entry *models.RequestLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	member := encodeMember(entry)
	floor := entry.Timestamp.Add(-retention).UnixMicro()

	res, err := appendScript.Run(ctx, r.client, []string{r.key}, entry.Timestamp.UnixMicro(), member, floor).Text()
	if err != nil {
		return fmt.Errorf("failed to append request log entry: %w", err)
	}

	score, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return fmt.Errorf("invalid score from append script: %w", err)
	}
	entry.Timestamp = time.UnixMicro(int64(score)).UTC()
	return nil
}

// SumCostSince returns the total cost of entries at or after since.
// An unreadable member fails the whole sum so guards never under-count spend.
func (r *RequestLogRepository) SumCostSince(ctx context.Context, since time.Time) (float64, error) {
	members, err := r.client.ZRangeByScore(ctx, r.key, &goredis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMicro(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read request log: %w", err)
	}

	var total float64
	for _, m := range members {
		cost, err := decodeCost(m)
		if err != nil {
			r.logger.Error("malformed request log member", zap.String("member", m), zap.Error(err))
			return 0, fmt.Errorf("malformed request log member %q: %w", m, err)
		}
		total += cost
	}
	return total, nil
}

// CountSince returns the number of entries at or after since
func (r *RequestLogRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	n, err := r.client.ZCount(ctx, r.key, strconv.FormatInt(since.UnixMicro(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count request log: %w", err)
	}
	return int(n), nil
}

// members are "id|cost|endpoint" so identical costs never collide
func encodeMember(entry *models.RequestLogEntry) string {
	return fmt.Sprintf("%s|%s|%s", entry.ID, strconv.FormatFloat(entry.Cost, 'f', -1, 64), entry.Endpoint)
}

func decodeCost(member string) (float64, error) {
	parts := strings.SplitN(member, "|", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("expected id|cost|endpoint")
	}
	return strconv.ParseFloat(parts[1], 64)
}
