package protector

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"strings"
)

// randomBytes 生成加密安全的随机字节
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("生成随机字节失败: %v", err)
	}
	return b, nil
}

// bareName 取路径的最后一段作为文件名。
// 同时处理两种分隔符，嵌入产物中的路径可能来自其他平台。
func bareName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// normalizeFileKey 将文件标识归一为文件键形式（缺少脚本后缀时补齐）
func normalizeFileKey(id, ext string) string {
	if strings.HasSuffix(id, ext) {
		return id
	}
	return id + ext
}

// cloneVisited 复制访问集合。递归的每个分支持有独立副本，
// 同一文件可以出现在多条兄弟分支上，但同一条分支内绝不重复。
func cloneVisited(visited map[string]bool) map[string]bool {
	clone := make(map[string]bool, len(visited)+1)
	for k := range visited {
		clone[k] = true
	}
	return clone
}

// uniqueStrings 保序去重
func uniqueStrings(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// shouldExcludeFile 检查文件是否匹配排除模式
func (p *Protector) shouldExcludeFile(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range p.Config.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// outputPathFor 把源路径映射到输出目录中的对应路径
func (p *Protector) outputPathFor(sourcePath string) (string, error) {
	rel, err := filepath.Rel(p.projectRoot, sourcePath)
	if err != nil {
		return "", fmt.Errorf("计算相对路径失败: %v", err)
	}
	return filepath.Join(p.outputDir, rel), nil
}

// xorInto 将 32 字节哈希按字节异或进累加器
func xorInto(acc []byte, h []byte) {
	for i := 0; i < len(acc) && i < len(h); i++ {
		acc[i] ^= h[i]
	}
}

// xorBytes 返回两个等长字节串的按字节异或
func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
