// Package server 为保护输出目录提供开发服务器：
// 静态托管分发副本，接收哈希协作者上报的实时内容哈希
// （HTTP 与 WebSocket 两路），驱动防篡改校验，
// 封锁后把所有页面响应替换为全视口遮罩页。
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"router-call-protector/router"
)

// Options 开发服务器选项
type Options struct {
	Addr           string        // 监听地址，默认 ":8480"
	OutputDir      string        // 被托管的保护输出目录
	RouterFile     string        // 路由器运行时文件名，默认 "router.js"
	ScriptExt      string        // 脚本扩展名，默认 ".js"
	VerifyTimeout  time.Duration // 校验器等待实时哈希的上限
	VerifyInterval time.Duration // 校验器就绪后的安定间隔
}

// Server 保护输出目录的开发服务器
type Server struct {
	opts       Options
	routerPath string
	rt         *router.Router
	store      *router.HashStore
	verifier   *router.Verifier
}

// New 创建开发服务器：在输出目录中定位路由器运行时文件，
// 提取三个嵌入产物并构造路由器与校验器。
func New(opts Options) (*Server, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("缺少输出目录")
	}
	if opts.Addr == "" {
		opts.Addr = ":8480"
	}
	if opts.RouterFile == "" {
		opts.RouterFile = "router.js"
	}
	if opts.ScriptExt == "" {
		opts.ScriptExt = ".js"
	}

	routerPath, err := findRouterFile(opts.OutputDir, opts.RouterFile)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(routerPath)
	if err != nil {
		return nil, fmt.Errorf("读取路由器运行时文件失败: %v", err)
	}
	arts, err := router.ExtractArtifacts(string(text))
	if err != nil {
		return nil, err
	}

	store := router.NewHashStore()
	rt, err := router.New(arts, store, nil, &router.Options{ScriptSuffix: opts.ScriptExt})
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:       opts,
		routerPath: routerPath,
		rt:         rt,
		store:      store,
	}
	s.verifier = router.NewVerifier(rt.PrecomputedHashes(), store, nil, &router.VerifierOptions{
		Timeout:  opts.VerifyTimeout,
		Interval: opts.VerifyInterval,
	})
	return s, nil
}

// Router 返回路由器运行时
func (s *Server) Router() *router.Router {
	return s.rt
}

// Verifier 返回防篡改校验器
func (s *Server) Verifier() *router.Verifier {
	return s.verifier
}

// Routes 组装 HTTP 路由。/guard 下是协作者与调试接口，
// 其余路径静态托管输出目录；封锁只拦页面，/guard 保持可达，
// 否则封锁后连状态都查不了。
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/guard", func(r chi.Router) {
		r.Post("/hashes", s.handleHashes)
		r.Get("/ws", s.handleWS)
		r.Get("/status", s.handleStatus)
		r.Post("/invoke", s.handleInvoke)
	})

	fileServer := http.FileServer(http.Dir(s.opts.OutputDir))
	r.Handle("/*", s.overlay(fileServer))
	return r
}

// ListenAndServe 启动校验器后台协程并阻塞服务 HTTP
func (s *Server) ListenAndServe() error {
	go s.verifier.Run()

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("开发服务器: 监听 %s，托管 %s", s.opts.Addr, s.opts.OutputDir)
	return srv.ListenAndServe()
}

// overlay 封锁后把静态响应替换为遮罩页
func (s *Server) overlay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if verdict, reason := s.verifier.Verdict(); verdict == router.VerdictBlocked {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintf(w, blockedPageHTML, html.EscapeString(reason))
			return
		}
		next.ServeHTTP(w, req)
	})
}

// hashReport 协作者上报体。单条与批量两种形态共用一个载体。
type hashReport struct {
	File   string            `json:"file,omitempty"`
	Hash   string            `json:"hash,omitempty"`
	Hashes map[string]string `json:"hashes,omitempty"`
}

type statusResponse struct {
	Verdict  string `json:"verdict"`
	Reason   string `json:"reason,omitempty"`
	Hashes   int    `json:"hashes"`
	Expected int    `json:"expected"`
}

type invokeRequest struct {
	Ciphertext string `json:"ciphertext"`
	File       string `json:"file"`
	Args       []any  `json:"args,omitempty"`
}

func (s *Server) handleHashes(w http.ResponseWriter, req *http.Request) {
	var in hashReport
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("解析哈希上报失败: %v", err))
		return
	}
	n := s.publish(in)
	if n == 0 {
		writeError(w, http.StatusBadRequest, errors.New("上报中没有有效条目"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"accepted": n, "total": s.store.Len()})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	verdict, reason := s.verifier.Verdict()
	writeJSON(w, http.StatusOK, statusResponse{
		Verdict:  verdict,
		Reason:   reason,
		Hashes:   s.store.Len(),
		Expected: len(s.rt.PrecomputedHashes()),
	})
}

func (s *Server) handleInvoke(w http.ResponseWriter, req *http.Request) {
	var in invokeRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("解析调用请求失败: %v", err))
		return
	}
	if err := s.rt.Invoke(in.Ciphertext, in.File, in.Args...); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dispatched"})
}

// publish 把上报写入实时哈希表，返回接受的条目数
func (s *Server) publish(in hashReport) int {
	n := 0
	if in.File != "" && in.Hash != "" {
		s.store.Publish(in.File, in.Hash)
		n++
	}
	for file, hash := range in.Hashes {
		if file == "" || hash == "" {
			continue
		}
		s.store.Publish(file, hash)
		n++
	}
	return n
}

// findRouterFile 在输出目录中按裸文件名定位路由器运行时文件
func findRouterFile(dir, base string) (string, error) {
	var found string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Base(path) == base {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("检索输出目录失败: %v", err)
	}
	if found == "" {
		return "", fmt.Errorf("输出目录中没有路由器运行时文件 %s", base)
	}
	return found, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

const blockedPageHTML = `<!DOCTYPE html>
<html lang="zh">
<head><meta charset="utf-8"><title>已封锁</title></head>
<body style="margin:0">
<div style="position:fixed;inset:0;background:#111;color:#eee;display:flex;flex-direction:column;align-items:center;justify-content:center;font-family:sans-serif;z-index:2147483647">
<h1>页面校验未通过</h1>
<p>%s</p>
</div>
</body>
</html>
`
