package router

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Blocker 校验失败时的封锁出口。宿主决定封锁的呈现方式：
// 开发服务器把所有页面替换为全视口遮罩，浏览器侧由
// 分发的运行时脚本自行插入遮罩层。
type Blocker interface {
	Block(reason string)
}

// BlockerFunc 把普通函数适配成 Blocker
type BlockerFunc func(reason string)

// Block 实现 Blocker
func (f BlockerFunc) Block(reason string) { f(reason) }

// 校验判定状态
const (
	VerdictPending = "pending"
	VerdictOK      = "ok"
	VerdictBlocked = "blocked"
)

// VerifierOptions 校验器选项
type VerifierOptions struct {
	Timeout  time.Duration // 等待实时哈希表就绪的上限，默认 10s
	Interval time.Duration // 就绪后的安定间隔，默认 500ms
}

// Verifier 防篡改校验器。一次生命周期只执行一轮：
// 有界等待实时哈希表出现首个条目，超时按协作者不可用处理并失败关闭
// （协作者缺席与保护机制被拆除不可区分，不能当作可信）；
// 就绪后逐条对照预计算表与实时表，首个缺失或不一致即封锁并中止检查。
type Verifier struct {
	pre      map[string]string
	store    *HashStore
	blocker  Blocker
	timeout  time.Duration
	interval time.Duration

	mu      sync.Mutex
	verdict string
	reason  string
}

// NewVerifier 创建校验器。pre 为按裸文件名键控的预计算哈希表。
func NewVerifier(pre map[string]string, store *HashStore, blocker Blocker, opts *VerifierOptions) *Verifier {
	timeout := 10 * time.Second
	interval := 500 * time.Millisecond
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.Interval > 0 {
			interval = opts.Interval
		}
	}
	return &Verifier{
		pre:      pre,
		store:    store,
		blocker:  blocker,
		timeout:  timeout,
		interval: interval,
		verdict:  VerdictPending,
	}
}

// Run 阻塞执行一轮校验。启动后没有取消路径，以自身的截止时间收束。
func (v *Verifier) Run() {
	if !v.store.WaitReady(v.timeout) {
		v.block("哈希协作者不可用: 等待实时哈希超时")
		return
	}
	time.Sleep(v.interval)

	names := make([]string, 0, len(v.pre))
	for name := range v.pre {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		live, ok := v.store.Get(name)
		if !ok {
			v.block(fmt.Sprintf("文件 %s 缺少实时哈希", bareName(name)))
			return
		}
		if live != v.pre[name] {
			v.block(fmt.Sprintf("文件 %s 的内容哈希不一致", bareName(name)))
			return
		}
	}

	v.mu.Lock()
	v.verdict = VerdictOK
	v.mu.Unlock()
	log.Printf("校验器: 全部 %d 个条目一致，放行", len(v.pre))
}

func (v *Verifier) block(reason string) {
	v.mu.Lock()
	v.verdict = VerdictBlocked
	v.reason = reason
	v.mu.Unlock()
	log.Printf("校验器: 封锁: %s", reason)
	if v.blocker != nil {
		v.blocker.Block(reason)
	}
}

// Verdict 返回当前判定与原因
func (v *Verifier) Verdict() (string, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.verdict, v.reason
}
