package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store 웹훅 이벤트 ID 중복 배달을 걸러내는 키 저장소.
// 빠른 경로 캐시 계층일 뿐이며, 최종 방어선은 DB의 행 잠금과 유니크 제약이다.
type Store interface {
	// Reserve 키를 TTL 동안 선점한다. 이미 선점된 키면 false를 반환한다.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// IsProcessed 키가 선점(처리 중이거나 처리 완료) 상태인지 확인한다.
	IsProcessed(ctx context.Context, key string) (bool, error)
	// Release 선점을 해제한다. 처리 실패 시 재전송이 다시 시도할 수 있게 한다.
	Release(ctx context.Context, key string) error
}

// RedisStore SetNX 기반 Store 구현. 키는 서비스별 prefix로 격리된다.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore Redis 기반 저장소 생성
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Reserve 키 선점
func (s *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.namespaced(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return ok, nil
}

// IsProcessed 키 선점 여부 확인
func (s *RedisStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.namespaced(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return exists > 0, nil
}

// Release 키 선점 해제
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if _, err := s.client.Del(ctx, s.namespaced(key)).Result(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) namespaced(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}
