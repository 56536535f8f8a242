package rag

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/BaSui01/policyqa/types"
)

// FlatIndex 暴力搜索的余弦相似度索引
//
// FlatIndex 是不可变快照：Append 返回新索引，旧快照上的并发搜索不受影响。
type FlatIndex struct {
	dimension int
	entries   []Entry
	norms     []float64
}

// NewFlatIndex 创建空索引；dimension 为 0 时由第一批向量决定
func NewFlatIndex(dimension int) *FlatIndex {
	return &FlatIndex{dimension: dimension}
}

// Len 索引中的向量数量
func (ix *FlatIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Dimension 向量维度（空索引可能为 0）
func (ix *FlatIndex) Dimension() int {
	if ix == nil {
		return 0
	}
	return ix.dimension
}

// Entries 返回记录的副本
func (ix *FlatIndex) Entries() []Entry {
	if ix == nil {
		return nil
	}
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

// Append 返回包含原有记录和新记录的新索引
func (ix *FlatIndex) Append(entries []Entry) (*FlatIndex, error) {
	dim := ix.Dimension()
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, types.NewError(types.ErrDimensionMismatch,
				fmt.Sprintf("entry %d has an empty vector", i))
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return nil, types.NewError(types.ErrDimensionMismatch,
				fmt.Sprintf("entry %d has dimension %d, index expects %d", i, len(e.Vector), dim))
		}
	}

	n := ix.Len()
	next := &FlatIndex{
		dimension: dim,
		entries:   make([]Entry, n, n+len(entries)),
		norms:     make([]float64, n, n+len(entries)),
	}
	if n > 0 {
		copy(next.entries, ix.entries)
		copy(next.norms, ix.norms)
	}
	for _, e := range entries {
		next.entries = append(next.entries, e)
		next.norms = append(next.norms, norm(e.Vector))
	}
	return next, nil
}

// Search 返回与 query 余弦相似度最高的 k 条记录，分数非递增
func (ix *FlatIndex) Search(query []float64, k int) ([]RetrievalResult, error) {
	if ix.Len() == 0 || k <= 0 {
		return []RetrievalResult{}, nil
	}
	if len(query) != ix.dimension {
		return nil, types.NewError(types.ErrDimensionMismatch,
			fmt.Sprintf("query has dimension %d, index expects %d", len(query), ix.dimension))
	}

	qNorm := norm(query)
	h := &scoreHeap{}
	for i, e := range ix.entries {
		s := cosine(query, e.Vector, qNorm, ix.norms[i])
		if h.Len() < k {
			heap.Push(h, scored{idx: i, score: s})
			continue
		}
		if worse((*h)[0], scored{idx: i, score: s}) {
			(*h)[0] = scored{idx: i, score: s}
			heap.Fix(h, 0)
		}
	}

	top := []scored(*h)
	sort.Slice(top, func(a, b int) bool { return worse(top[b], top[a]) })

	results := make([]RetrievalResult, len(top))
	for i, s := range top {
		results[i] = RetrievalResult{Chunk: ix.entries[s.idx].Chunk, Score: s.score}
	}
	return results, nil
}

// cosineSimilarity 计算余弦相似度，长度不一致或零向量时为 0
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	return cosine(a, b, norm(a), norm(b))
}

func cosine(a, b []float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0.0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (normA * normB)
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// ====== top-k 小顶堆 ======

type scored struct {
	idx   int
	score float64
}

// worse 分数更低，或分数相同时插入更晚
func worse(a, b scored) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.idx > b.idx
}

type scoreHeap []scored

func (h scoreHeap) Len() int           { return len(h) }
func (h scoreHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h scoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x any)        { *h = append(*h, x.(scored)) }
func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
