package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tashkeela.com/diac/redis"
)

var ErrNotFound = errors.New("job task not found")

const RFC3339Micro = "2006-01-02T15:04:05.000000-07:00"

// jobTTL keeps finished job records around long enough to be polled.
const jobTTL = 7 * 24 * time.Hour

// Client keeps decode job records as JSON documents in Redis.
type Client struct {
	redis  *redis.Client
	prefix string
}

func NewClient(client *redis.Client, prefix string) *Client {
	return &Client{redis: client, prefix: prefix}
}

func (client *Client) Key(id string) string {
	return fmt.Sprintf("%sjob:%s", client.prefix, id)
}

func (client *Client) Get(ctx context.Context, id string) (*JobTask, error) {
	b, err := client.redis.Universal().Get(ctx, client.Key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%s: %w", client.Key(id), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var task JobTask
	if err := json.Unmarshal(b, &task); err != nil {
		return nil, fmt.Errorf("decode %s: %w", client.Key(id), err)
	}
	return &task, nil
}

func (client *Client) save(ctx context.Context, task *JobTask) error {
	b, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return client.redis.Universal().Set(ctx, client.Key(task.ID), b, jobTTL).Err()
}

// GetOrCreate returns the stored record of task.ID, storing task as a
// submitted job first if there is none.
func (client *Client) GetOrCreate(ctx context.Context, task JobTask) (*JobTask, error) {
	if task.Status == "" {
		task.Status = TaskStatusSubmitted
	}
	b, err := json.Marshal(&task)
	if err != nil {
		return nil, err
	}
	created, err := client.redis.Universal().SetNX(ctx, client.Key(task.ID), b, jobTTL).Result()
	if err != nil {
		return nil, err
	}
	if created {
		return &task, nil
	}
	return client.Get(ctx, task.ID)
}

// Update applies updateFunc to the stored record while holding its lock.
func (client *Client) Update(ctx context.Context, id string, updateFunc func(task *JobTask)) (err error) {
	releaseLock, err := client.redis.Lock(ctx, client.Key(id))
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()

	task, err := client.Get(ctx, id)
	if err != nil {
		return err
	}
	updateFunc(task)
	return client.save(ctx, task)
}

func (client *Client) Close() error {
	return client.redis.Close()
}

func FormattedNow() *string {
	now := time.Now().UTC().Format(RFC3339Micro)
	return &now
}
