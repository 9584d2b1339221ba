package fetch

import (
	"context"
	"sync"
)

// inflightEntry は進行中フェッチの登録1件を表す。
type inflightEntry struct {
	cancel context.CancelFunc
}

// Registry は対象ごとの進行中フェッチを管理する。
// 同じ対象への新しいフェッチが始まると、進行中の古いフェッチをキャンセルする。
// 最後に要求されたフェッチだけが結果を反映する。
type Registry struct {
	mu       sync.Mutex
	inflight map[string]*inflightEntry
}

// NewRegistry はRegistryの新しいインスタンスを生成する。
func NewRegistry() *Registry {
	return &Registry{
		inflight: make(map[string]*inflightEntry),
	}
}

// Begin は指定キーのフェッチ開始を登録する。
// 同じキーで進行中のフェッチがあればキャンセルする。
// 返されるコンテキストは後続のフェッチ開始でキャンセルされる。
func (r *Registry) Begin(ctx context.Context, key string) (context.Context, *inflightEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.inflight[key]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	entry := &inflightEntry{cancel: cancel}
	r.inflight[key] = entry
	return ctx, entry
}

// End はフェッチ終了を登録する。
// 自分より新しいフェッチが既に登録されている場合はその登録に触れない。
func (r *Registry) End(key string, entry *inflightEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.cancel()
	if current, ok := r.inflight[key]; ok && current == entry {
		delete(r.inflight, key)
	}
}

// Len は進行中フェッチの数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
