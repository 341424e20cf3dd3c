package router

import "sync"

// TargetFunc 可被路由器调度的目标函数
type TargetFunc func(args ...any)

// Registry 进程级函数注册表。应用模块在初始化时注册各自的入口函数，
// 路由器仅按名字查找；查无此名是正常的受控结果，不是崩溃。
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]TargetFunc
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]TargetFunc)}
}

// Register 登记一个目标函数，同名覆盖
func (r *Registry) Register(name string, fn TargetFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup 按名字查找目标函数
func (r *Registry) Lookup(name string) (TargetFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

var defaultRegistry = NewRegistry()

// Default 返回进程级默认注册表
func Default() *Registry {
	return defaultRegistry
}

// Register 在默认注册表中登记目标函数
func Register(name string, fn TargetFunc) {
	defaultRegistry.Register(name, fn)
}
