package protector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// hashCacheSize 内容哈希缓存容量。
// 同一依赖文件会被多个路由器依赖文件的密钥派生反复折叠。
const hashCacheSize = 1024

// hashFileHex 计算文件内容的 SHA-256（小写十六进制），带 LRU 缓存
func (p *Protector) hashFileHex(path string) (string, error) {
	if cached, ok := p.hashCache.Get(path); ok {
		return cached, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取文件 %s 失败: %v", path, err)
	}
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])
	p.hashCache.Add(path, h)
	return h, nil
}

// hashShipped 对源路径对应的输出副本取哈希。
// 密钥折叠的是分发内容：非路由器依赖文件原样复制，
// 源与产物哈希一致，以产物为准使性质字面成立。
func (p *Protector) hashShipped(sourcePath string) ([]byte, error) {
	outPath, err := p.outputPathFor(sourcePath)
	if err != nil {
		return nil, err
	}
	h, err := p.hashFileHex(outPath)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("解码哈希失败: %v", err)
	}
	return raw, nil
}

// buildPrecomputedTable 对输出目录中的最终脚本内容计算预计算哈希表。
// 表按裸文件名键控；路由器运行时文件被排除：三个产物常量
// 嵌在它体内，它最终内容的哈希不可能出现在自己携带的表里。
func (p *Protector) buildPrecomputedTable() error {
	table, err := HashDir(p.outputDir, p.Config.ScriptExt, p.Config.RouterFile)
	if err != nil {
		return err
	}
	p.precomputed = table
	log.Printf("预计算哈希表: %d 个条目", len(table))
	return nil
}

// HashDir 遍历目录中带指定后缀的文件，返回 裸文件名 -> SHA-256 表。
// excludeBases 中的裸文件名被跳过。
func HashDir(dir, ext string, excludeBases ...string) (map[string]string, error) {
	excluded := make(map[string]bool, len(excludeBases))
	for _, b := range excludeBases {
		excluded[b] = true
	}
	table := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ext) {
			return nil
		}
		base := filepath.Base(path)
		if excluded[base] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("读取文件 %s 失败: %v", path, err)
		}
		sum := sha256.Sum256(data)
		table[base] = hex.EncodeToString(sum[:])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}
