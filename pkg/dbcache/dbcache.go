package dbcache

import (
	"context"
	"database/sql"
	"sync"
)

// ConnectFunc はデータベースへの接続を確立する関数。
// 成功時に返される*sql.DBはプロセス全体で共有される。
type ConnectFunc func(ctx context.Context) (*sql.DB, error)

// Cache は単一の*sql.DBを遅延初期化して保持するキャッシュ。
// ゼロ値は使用できないため、Newで生成する。
type Cache struct {
	connect ConnectFunc

	mu      sync.Mutex
	db      *sql.DB
	pending *attempt
}

// attempt は進行中の接続試行。dbとerrはdoneがクローズされる前に書き込まれる。
type attempt struct {
	done chan struct{}
	db   *sql.DB
	err  error
}

// New は指定された接続関数を使うCacheを生成する。この時点では接続しない。
func New(connect ConnectFunc) *Cache {
	return &Cache{connect: connect}
}

// Acquire は共有データベースハンドルを返す。
// 未接続であれば接続を確立し、確立中であれば進行中の試行の完了を待つ。
// 接続に失敗した場合は待機中の全呼び出し元へ同じエラーを返し、
// 次のAcquireで再試行する。
//
// 接続処理は呼び出し元のctxから切り離して実行されるため、単一クライアントの
// キャンセルで共有接続の確立は中断されない。ctxがキャンセルされた
// 呼び出し元は待機をやめてctx.Err()を受け取る。
func (c *Cache) Acquire(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	if c.db != nil {
		db := c.db
		c.mu.Unlock()
		return db, nil
	}
	p := c.pending
	if p == nil {
		p = &attempt{done: make(chan struct{})}
		c.pending = p
		go c.run(context.WithoutCancel(ctx), p)
	}
	c.mu.Unlock()

	select {
	case <-p.done:
		return p.db, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run は接続試行を実行し、結果をキャッシュへ反映してから待機者を解放する。
// 失敗時はpendingを先に破棄するため、解放後に到着したAcquireは再試行する。
func (c *Cache) run(ctx context.Context, p *attempt) {
	db, err := c.connect(ctx)

	c.mu.Lock()
	if err == nil {
		c.db = db
	}
	c.pending = nil
	c.mu.Unlock()

	p.db = db
	p.err = err
	close(p.done)
}
