package protector

import (
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// New 创建新的保护器实例
func New(projectRoot, outputDir string, config *Config) *Protector {
	if config == nil {
		config = DefaultConfig()
	}
	if abs, err := filepath.Abs(projectRoot); err == nil {
		projectRoot = abs
	}
	if outputDir == "" {
		outputDir = filepath.Join(projectRoot, config.OutputDirName)
	}
	if abs, err := filepath.Abs(outputDir); err == nil {
		outputDir = abs
	}

	cache, _ := lru.New[string, string](hashCacheSize)
	marker := regexp.QuoteMeta(config.Marker)

	return &Protector{
		fileContents:  make(map[string]string),
		declaredFuncs: make(map[string][]string),
		functionIndex: make(map[string]string),
		baseNameIndex: make(map[string]string),
		routerFlags:   make(map[string]bool),

		reDescriptorSQ: regexp.MustCompile(marker + `\(\s*'([^']*)'`),
		reDescriptorDQ: regexp.MustCompile(marker + `\(\s*"([^"]*)"`),
		reSiteSQ:       regexp.MustCompile(marker + `\(\s*'([^']*)'\s*,\s*'([^']*)'`),
		reSiteDQ:       regexp.MustCompile(marker + `\(\s*"([^"]*)"\s*,\s*"([^"]*)"`),

		tree:       make(DependencyTree),
		keys:       make(map[string][]byte),
		masks:      make(map[string][]byte),
		ivs:        make(IVMapping),
		cipherSeen: make(map[string]bool),
		hashCache:  cache,

		runID:     uuid.NewString(),
		startedAt: time.Now().Unix(),

		projectRoot: projectRoot,
		outputDir:   outputDir,
		Config:      config,
	}
}

// Run 执行完整的保护流程
func (p *Protector) Run() error {
	log.Printf("构建 %s: 项目 %s -> %s", p.runID, p.projectRoot, p.outputDir)

	log.Println("阶段 1/6: 扫描与词法分析")
	if err := p.scanProject(); err != nil {
		return fmt.Errorf("扫描项目失败: %v", err)
	}

	log.Println("阶段 2/6: 构建依赖树")
	p.buildDependencyTree()

	log.Println("阶段 3/6: 镜像复制项目到输出目录")
	if err := p.copyProject(); err != nil {
		return fmt.Errorf("复制项目失败: %v", err)
	}

	log.Println("阶段 4/6: 派生文件密钥")
	if err := p.deriveKeys(); err != nil {
		return fmt.Errorf("派生密钥失败: %v", err)
	}

	log.Println("阶段 5/6: 加密路由调用点")
	if err := p.encryptRouterFiles(); err != nil {
		return fmt.Errorf("加密调用点失败: %v", err)
	}

	log.Println("阶段 6/6: 打包分发产物")
	if err := p.buildPrecomputedTable(); err != nil {
		return fmt.Errorf("构建预计算哈希表失败: %v", err)
	}
	artifacts, err := p.buildArtifacts()
	if err != nil {
		return err
	}
	if err := p.embedArtifacts(artifacts); err != nil {
		return err
	}
	p.artifacts = artifacts

	log.Println("保护流程完成")
	return nil
}

// RunID 返回本次构建的唯一标识
func (p *Protector) RunID() string {
	return p.runID
}

// StartedAt 返回构建开始的 Unix 时间戳
func (p *Protector) StartedAt() int64 {
	return p.startedAt
}

// OutputDir 返回输出目录的绝对路径
func (p *Protector) OutputDir() string {
	return p.outputDir
}

// Artifacts 返回打包阶段产出的三个 base64 常量（Run 之后有效）
func (p *Protector) Artifacts() *BuildArtifacts {
	return p.artifacts
}

// PrecomputedHashes 返回预计算哈希表的副本
func (p *Protector) PrecomputedHashes() map[string]string {
	out := make(map[string]string, len(p.precomputed))
	for k, v := range p.precomputed {
		out[k] = v
	}
	return out
}

// IVSMapping 返回 IV 映射的深副本
func (p *Protector) IVSMapping() IVMapping {
	out := make(IVMapping, len(p.ivs))
	for file, entry := range p.ivs {
		m := make(map[string]string, len(entry))
		for k, v := range entry {
			m[k] = v
		}
		out[file] = m
	}
	return out
}

// Edges 返回诊断用的调用边列表
func (p *Protector) Edges() []DependencyEdge {
	return p.edges
}

// GetStatistics 返回保护统计信息
func (p *Protector) GetStatistics() *Statistics {
	return &Statistics{
		RunID:          p.runID,
		ScriptFiles:    len(p.fileContents),
		RouterFiles:    p.routerFileCount(),
		EncryptedCalls: p.encryptedCalls,
		EdgesFound:     len(p.edges),
		HashedFiles:    len(p.precomputed),
		SkippedFiles:   p.skippedFiles,
		CopiedFiles:    p.copiedFiles,
	}
}
