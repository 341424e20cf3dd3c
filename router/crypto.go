package router

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
)

// ReconstructKey 还原文件密钥：把收集到的实时哈希逐个异或进
// 32 字节累加器，再与公开掩码异或。与构建期派生逐位一致。
func ReconstructKey(liveHashes []string, maskHex string) ([]byte, error) {
	mask, err := hex.DecodeString(maskHex)
	if err != nil {
		return nil, fmt.Errorf("解码掩码失败: %v", err)
	}
	if len(mask) != sha256.Size {
		return nil, fmt.Errorf("掩码长度无效: %d 字节", len(mask))
	}

	acc := make([]byte, sha256.Size)
	for _, hh := range liveHashes {
		raw, err := hex.DecodeString(hh)
		if err != nil || len(raw) != sha256.Size {
			log.Printf("路由器: 警告: 实时哈希格式无效，已跳过")
			continue
		}
		for i := range acc {
			acc[i] ^= raw[i]
		}
	}
	for i := range acc {
		acc[i] ^= mask[i]
	}
	return acc, nil
}

// decryptCBC 解开 base64 密文。所有密码学失败都在这里收口成错误值。
func decryptCBC(cipherB64, ivB64 string, key []byte) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return "", fmt.Errorf("解码密文失败: %v", err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", fmt.Errorf("解码 IV 失败: %v", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("IV 长度无效: %d 字节", len(iv))
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("密文长度无效: %d 字节", len(ct))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("创建 AES 密码失败: %v", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// pkcs7Unpad 校验并去除 PKCS#7 填充
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("填充数据长度无效")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("填充字节无效")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("填充字节无效")
		}
	}
	return data[:len(data)-n], nil
}
