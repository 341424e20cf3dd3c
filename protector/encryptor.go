package protector

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// encryptRouterFiles 在输出副本中重写每个路由器依赖文件的调用点。
// 每个调用点单独加密一次，不跨相同描述符去重；
// 相同明文出现两次也会得到不同 IV、不同密文。
func (p *Protector) encryptRouterFiles() error {
	for path, flagged := range p.routerFlags {
		if !flagged {
			continue
		}
		fileKey := filepath.Base(path)
		key, ok := p.keys[fileKey]
		if !ok {
			log.Printf("警告: %s 没有派生密钥，调用点保持明文", fileKey)
			continue
		}

		outPath, err := p.outputPathFor(path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(outPath)
		if err != nil {
			return fmt.Errorf("读取输出副本 %s 失败: %v", outPath, err)
		}

		rewritten, sites, err := p.encryptSites(string(data), fileKey, key)
		if err != nil {
			return fmt.Errorf("加密 %s 的调用点失败: %v", fileKey, err)
		}
		if sites == 0 {
			continue
		}
		if err := os.WriteFile(outPath, []byte(rewritten), 0644); err != nil {
			return fmt.Errorf("写回输出副本 %s 失败: %v", outPath, err)
		}
		// 密文写入后旧缓存条目失效
		p.hashCache.Remove(outPath)
		p.encryptedCalls += sites
		log.Printf("已加密 %s 中的 %d 处路由调用", fileKey, sites)
	}
	return nil
}

// encryptSites 依次套用两种引号风格的调用点模式，按源扫描序逐点加密
func (p *Protector) encryptSites(text, fileKey string, key []byte) (string, int, error) {
	total := 0
	for _, re := range []*regexp.Regexp{p.reSiteSQ, p.reSiteDQ} {
		out, n, err := p.encryptPass(text, re, fileKey, key)
		if err != nil {
			return "", 0, err
		}
		text = out
		total += n
	}
	return text, total, nil
}

// encryptPass 单种引号风格的一轮重写。
// 只替换首参字面量的内文，被调文件标识与后续实参原样保留。
func (p *Protector) encryptPass(text string, re *regexp.Regexp, fileKey string, key []byte) (string, int, error) {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, 0, nil
	}

	var b strings.Builder
	cursor := 0
	for _, loc := range matches {
		start, end := loc[2], loc[3] // 第一捕获组: 描述符字面量内文
		cipherB64, ivB64, err := p.encryptDescriptor(text[start:end], key)
		if err != nil {
			return "", 0, err
		}
		b.WriteString(text[cursor:start])
		b.WriteString(cipherB64)
		cursor = end
		p.ivs[fileKey][cipherB64] = ivB64
	}
	b.WriteString(text[cursor:])
	return b.String(), len(matches), nil
}

// encryptDescriptor 用 AES-256-CBC 加密描述符明文。
// 映射按密文字符串精确查键，密文必须全构建唯一；
// 撞上已有密文就换新 IV 重加密。
func (p *Protector) encryptDescriptor(plain string, key []byte) (string, string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", fmt.Errorf("创建 AES 密码失败: %v", err)
	}
	for attempt := 0; attempt < 8; attempt++ {
		iv, err := randomBytes(aes.BlockSize)
		if err != nil {
			return "", "", err
		}
		padded := pkcs7Pad([]byte(plain), aes.BlockSize)
		ct := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

		cipherB64 := base64.StdEncoding.EncodeToString(ct)
		if p.cipherSeen[cipherB64] {
			continue
		}
		p.cipherSeen[cipherB64] = true
		return cipherB64, base64.StdEncoding.EncodeToString(iv), nil
	}
	return "", "", fmt.Errorf("无法生成唯一密文")
}

// pkcs7Pad PKCS#7 填充到块边界
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}
