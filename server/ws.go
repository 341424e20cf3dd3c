package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	hashWSWriteWait = 10 * time.Second
	hashWSPongWait  = 60 * time.Second
	hashWSPingEvery = (hashWSPongWait * 9) / 10
)

var hashWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type hashWSInbound struct {
	Type   string            `json:"type"`
	File   string            `json:"file,omitempty"`
	Hash   string            `json:"hash,omitempty"`
	Hashes map[string]string `json:"hashes,omitempty"`
}

type hashWSOutbound struct {
	Type    string `json:"type"`
	Count   int    `json:"count,omitempty"`
	Total   int    `json:"total,omitempty"`
	Verdict string `json:"verdict,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleWS 以 WebSocket 接收哈希协作者的持续上报。
// 写侧单协程（含周期 ping），读侧循环解 JSON，对端断开即收尾。
func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := hashWSUpgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(hashWSPongWait)); err != nil {
		log.Printf("开发服务器: 设置读截止时间失败: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(hashWSPongWait))
	})

	writeCh := make(chan hashWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(hashWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(hashWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(hashWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		var in hashWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "", "hash", "batch":
			n := s.publish(hashReport{File: in.File, Hash: in.Hash, Hashes: in.Hashes})
			pushHashWS(writeCh, hashWSOutbound{Type: "ack", Count: n, Total: s.store.Len()})
		case "status":
			verdict, reason := s.verifier.Verdict()
			pushHashWS(writeCh, hashWSOutbound{Type: "status", Verdict: verdict, Reason: reason, Total: s.store.Len()})
		case "ping":
			pushHashWS(writeCh, hashWSOutbound{Type: "pong"})
		default:
			pushHashWS(writeCh, hashWSOutbound{Type: "error", Message: "不支持的消息类型: " + in.Type})
		}
	}
}

// pushHashWS 非阻塞投递；写队列满时丢最旧一条腾位
func pushHashWS(writeCh chan hashWSOutbound, out hashWSOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
