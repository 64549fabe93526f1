package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maheshrc27/postdispatch/internal/metrics"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/redis/go-redis/v9"
)

const journalKey = "postdispatch:outcome_journal"

// OutcomeJournal is a Redis list of platform outcomes that were published but
// could not be written to Postgres. Entries are pushed on the left and
// drained from the right, oldest first.
type OutcomeJournal struct {
	c   *redis.Client
	key string
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewOutcomeJournal(c *redis.Client) *OutcomeJournal {
	return &OutcomeJournal{c: c, key: journalKey}
}

func (j *OutcomeJournal) Push(ctx context.Context, entry *models.JournaledOutcome) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	n, err := j.c.LPush(ctx, j.key, b).Result()
	if err != nil {
		return fmt.Errorf("push journal entry: %w", err)
	}
	metrics.SetJournalDepth(n)
	return nil
}

// Pop removes the oldest entry. It returns nil, nil when the journal is empty.
// An entry that cannot be decoded is dropped and reported as an error.
func (j *OutcomeJournal) Pop(ctx context.Context) (*models.JournaledOutcome, error) {
	b, err := j.c.RPop(ctx, j.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.SetJournalDepth(0)
			return nil, nil
		}
		return nil, fmt.Errorf("pop journal entry: %w", err)
	}

	var entry models.JournaledOutcome
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, fmt.Errorf("decode journal entry %q: %w", string(b), err)
	}
	return &entry, nil
}

func (j *OutcomeJournal) Len(ctx context.Context) (int64, error) {
	n, err := j.c.LLen(ctx, j.key).Result()
	if err != nil {
		return 0, err
	}
	metrics.SetJournalDepth(n)
	return n, nil
}
