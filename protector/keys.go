package protector

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"path/filepath"
)

// deriveKeys 为每个路由器依赖文件派生 AES-256 密钥。
// 密钥 = 非路由器依赖后代分发内容哈希的异或折叠 XOR 新鲜随机掩码。
// 异或满足交换律与结合律，折叠结果与遍历次序无关；
// 掩码随映射公开，密钥仅构建期持有。
func (p *Protector) deriveKeys() error {
	for rootPath, node := range p.tree {
		if !p.routerFlags[rootPath] {
			continue
		}
		fileKey := filepath.Base(rootPath)
		if _, done := p.keys[fileKey]; done {
			continue
		}

		acc := make([]byte, sha256.Size)
		folded := 0
		for _, dep := range p.branchFiles(rootPath, node) {
			h, err := p.hashShipped(dep)
			if err != nil {
				log.Printf("警告: 无法折叠依赖 %s 的哈希: %v", dep, err)
				continue
			}
			xorInto(acc, h)
			folded++
		}

		mask, err := randomBytes(sha256.Size)
		if err != nil {
			return err
		}
		p.keys[fileKey] = xorBytes(acc, mask)
		p.masks[fileKey] = mask
		p.ivs[fileKey] = map[string]string{"mask": hex.EncodeToString(mask)}

		log.Printf("已派生 %s 的密钥（折叠 %d 个依赖哈希）", fileKey, folded)
	}
	return nil
}
