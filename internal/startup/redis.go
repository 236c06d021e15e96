package startup

import (
	"context"
	"fmt"
	"time"

	rediscache "github.com/studygroup/internal/cache/redis"
	"github.com/studygroup/internal/logger"
)

// ConnectRedisWithRetry подключается к Redis с повторами. В отличие от БД,
// Redis не обязателен: по истечении maxWait возвращается ошибка, а не os.Exit,
// чтобы вызывающий мог деградировать до in-memory кеша.
// logPrefix добавляется к сообщениям лога (например "api: ").
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) (*rediscache.Client, error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := rediscache.New(ctx, redisURL)
		cancel()
		if err == nil {
			return client, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("redis (gave up after %v): %w", maxWait, err)
		}
		logger.Errorf("%sredis connect failed, retry in %v: %v", logPrefix, backoff, err)
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
