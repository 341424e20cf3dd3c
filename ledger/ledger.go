// Package ledger 记录每次保护构建的台账：运行行与逐文件分发哈希，
// 支撑输出目录的离线校验与构建历史查询。
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL,
	project_root TEXT NOT NULL,
	output_dir   TEXT NOT NULL,
	script_files INTEGER NOT NULL DEFAULT 0,
	router_files INTEGER NOT NULL DEFAULT 0,
	call_sites   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS file_hashes (
	run_id    TEXT NOT NULL,
	file_name TEXT NOT NULL,
	sha256    TEXT NOT NULL,
	PRIMARY KEY (run_id, file_name)
);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_root, started_at);
`

// ErrNoRuns 查询的项目没有任何构建记录
var ErrNoRuns = errors.New("没有构建记录")

// Run 一次保护构建的台账行
type Run struct {
	ID          string
	StartedAt   int64
	FinishedAt  int64
	ProjectRoot string
	OutputDir   string
	ScriptFiles int
	RouterFiles int
	CallSites   int
}

// Mismatch 离线校验发现的一处不一致。Actual 为空表示文件缺失。
type Mismatch struct {
	FileName string
	Expected string
	Actual   string
}

// Store 构建台账
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）台账数据库并初始化结构
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开台账数据库失败: %v", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化台账结构失败: %v", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭底层数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun 在一个事务中写入运行行与逐文件哈希
func (s *Store) RecordRun(run *Run, hashes map[string]string) error {
	if run.FinishedAt == 0 {
		run.FinishedAt = time.Now().Unix()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (run_id, started_at, finished_at, project_root, output_dir, script_files, router_files, call_sites)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.FinishedAt, run.ProjectRoot, run.OutputDir,
		run.ScriptFiles, run.RouterFiles, run.CallSites); err != nil {
		return fmt.Errorf("写入运行行失败: %v", err)
	}
	for name, h := range hashes {
		if _, err := tx.Exec(
			`INSERT INTO file_hashes (run_id, file_name, sha256) VALUES (?, ?, ?)`,
			run.ID, name, h); err != nil {
			return fmt.Errorf("写入文件哈希失败: %v", err)
		}
	}
	return tx.Commit()
}

// LastRun 返回某项目最近一次构建记录
func (s *Store) LastRun(projectRoot string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT run_id, started_at, finished_at, project_root, output_dir, script_files, router_files, call_sites
		 FROM runs WHERE project_root = ? ORDER BY started_at DESC, run_id DESC LIMIT 1`,
		projectRoot)
	run := &Run{}
	err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.ProjectRoot,
		&run.OutputDir, &run.ScriptFiles, &run.RouterFiles, &run.CallSites)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoRuns, projectRoot)
	}
	if err != nil {
		return nil, fmt.Errorf("查询构建记录失败: %v", err)
	}
	return run, nil
}

// ListRuns 按开始时间倒序列出最近的构建记录
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT run_id, started_at, finished_at, project_root, output_dir, script_files, router_files, call_sites
		 FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询构建历史失败: %v", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run := Run{}
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.ProjectRoot,
			&run.OutputDir, &run.ScriptFiles, &run.RouterFiles, &run.CallSites); err != nil {
			return nil, fmt.Errorf("读取构建记录失败: %v", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// HashesForRun 返回一次构建记录的逐文件哈希表
func (s *Store) HashesForRun(runID string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT file_name, sha256 FROM file_hashes WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("查询文件哈希失败: %v", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, h string
		if err := rows.Scan(&name, &h); err != nil {
			return nil, fmt.Errorf("读取文件哈希失败: %v", err)
		}
		out[name] = h
	}
	return out, rows.Err()
}

// Diff 对照记录的哈希表与当前哈希表，按文件名排序返回不一致项。
// 只关心记录过的文件；当前目录多出的文件不算篡改。
func Diff(recorded, current map[string]string) []Mismatch {
	names := make([]string, 0, len(recorded))
	for name := range recorded {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Mismatch
	for _, name := range names {
		actual, ok := current[name]
		if !ok {
			out = append(out, Mismatch{FileName: name, Expected: recorded[name]})
			continue
		}
		if actual != recorded[name] {
			out = append(out, Mismatch{FileName: name, Expected: recorded[name], Actual: actual})
		}
	}
	return out
}
