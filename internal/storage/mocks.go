package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mohamedkhairy/chart-engine/internal/models"
)

// MockBarStorage is a mock implementation of BarStorage for testing
type MockBarStorage struct {
	Bars      []*models.Bar
	WriteErr  error
	GetErr    error
	LatestErr error
}

func (m *MockBarStorage) WriteBars(ctx context.Context, bars []*models.Bar) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Bars = append(m.Bars, bars...)
	return nil
}

func (m *MockBarStorage) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]*models.Bar, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var result []*models.Bar
	for _, bar := range m.Bars {
		if bar.Symbol == symbol && !bar.Timestamp.Before(start) && !bar.Timestamp.After(end) {
			result = append(result, bar)
		}
	}
	return result, nil
}

func (m *MockBarStorage) GetLatestBars(ctx context.Context, symbol string, limit int) ([]*models.Bar, error) {
	if m.LatestErr != nil {
		return nil, m.LatestErr
	}
	var result []*models.Bar
	for i := len(m.Bars) - 1; i >= 0 && len(result) < limit; i-- {
		if m.Bars[i].Symbol == symbol {
			result = append(result, m.Bars[i])
		}
	}
	// Reverse to get chronological order
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

func (m *MockBarStorage) Close() error {
	return nil
}

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu       sync.Mutex
	Streams  map[string][]map[string]interface{}
	KV       map[string][]byte
	Acked    []string
	StreamCh chan StreamMessage
	PubErr   error
	SetErr   error
}

// NewMockRedisClient creates a new mock Redis client
func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Streams:  make(map[string][]map[string]interface{}),
		KV:       make(map[string][]byte),
		StreamCh: make(chan StreamMessage, 100),
	}
}

func (m *MockRedisClient) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	if m.PubErr != nil {
		return m.PubErr
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Streams[stream] = append(m.Streams[stream], map[string]interface{}{key: string(data)})
	return nil
}

func (m *MockRedisClient) PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error {
	if m.PubErr != nil {
		return m.PubErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Streams[stream] = append(m.Streams[stream], messages...)
	return nil
}

func (m *MockRedisClient) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error) {
	return m.StreamCh, nil
}

func (m *MockRedisClient) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Acked = append(m.Acked, id)
	return nil
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.KV[key] = data
	return nil
}

func (m *MockRedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	data, ok := m.KV[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func (m *MockRedisClient) Close() error {
	return nil
}

// StreamLen returns the number of messages published to a stream
func (m *MockRedisClient) StreamLen(stream string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Streams[stream])
}
