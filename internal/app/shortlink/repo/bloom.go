package repo

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 并发安全的布隆过滤器，用于在查库前排除"一定不存在"的短码。
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewBloomFilter
// expectedItems: 预期存储的元素数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *BloomFilter) Add(short string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(short)
}

// MightExist 返回 false 表示一定不存在；true 表示可能存在
func (b *BloomFilter) MightExist(short string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(short)
}

func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
