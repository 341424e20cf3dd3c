package router

import (
	"testing"
	"time"
)

// TestPublishNormalizesFileName 协作者可以上报任意形式的路径，
// 表内统一按裸文件名键控。
func TestPublishNormalizesFileName(t *testing.T) {
	s := NewHashStore()
	s.Publish("/srv/app/file1.js", "aaaa")
	s.Publish(`sub\file2.js`, "bbbb")

	if h, ok := s.Get("file1.js"); !ok || h != "aaaa" {
		t.Errorf("Get(file1.js) = %q/%v, 应为 aaaa/true", h, ok)
	}
	if h, ok := s.Get("any/dir/file2.js"); !ok || h != "bbbb" {
		t.Errorf("带路径读取也应命中裸文件名, 实得 %q/%v", h, ok)
	}
	if _, ok := s.Get("ghost.js"); ok {
		t.Error("未上报的文件不应命中")
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, 应为 2", s.Len())
	}
}

// TestWaitReadyTimesOutWithoutPublish 无人上报时按截止时间返回 false
func TestWaitReadyTimesOutWithoutPublish(t *testing.T) {
	s := NewHashStore()
	start := time.Now()
	if s.WaitReady(30 * time.Millisecond) {
		t.Fatal("空表的 WaitReady 应超时返回 false")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("WaitReady 应等满截止时间")
	}
}

// TestWaitReadyWakesOnFirstPublish 首个条目写入唤醒等待者
func TestWaitReadyWakesOnFirstPublish(t *testing.T) {
	s := NewHashStore()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Publish("file1.js", "aaaa")
	}()
	if !s.WaitReady(2 * time.Second) {
		t.Fatal("上报后 WaitReady 应返回 true")
	}
	// 就绪后再次等待立即返回
	if !s.WaitReady(time.Millisecond) {
		t.Error("已就绪的表再次等待应立即返回 true")
	}
}

// TestSnapshotIsIndependentCopy 快照与表内状态互不影响
func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := NewHashStore()
	s.Publish("file1.js", "aaaa")

	snap := s.Snapshot()
	snap["file1.js"] = "改掉"
	snap["file9.js"] = "新增"

	if h, _ := s.Get("file1.js"); h != "aaaa" {
		t.Errorf("改写快照影响了表内条目: %q", h)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, 快照新增不应进表", s.Len())
	}
}
