package health

import "sync/atomic"

// Readiness 就绪状态聚合（数据库、射频链路等）
type Readiness struct {
	dbReady   atomic.Bool
	linkReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetDBReady(v bool)   { r.dbReady.Store(v) }
func (r *Readiness) SetLinkReady(v bool) { r.linkReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.dbReady.Load() && r.linkReady.Load()
}
