// Package router 实现路由调用的运行时侧：
// 从外部提供的实时内容哈希与公开掩码还原文件密钥，
// 解密调用描述符并经函数注册表调度目标函数，
// 以及对照预计算哈希表的防篡改校验。
package router

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
)

// Artifacts 运行时消费的三个嵌入常量，均为 base64 的 UTF-8 JSON
type Artifacts struct {
	DependencyTreeB64    string
	IVSMappingB64        string
	PrecomputedHashesB64 string
}

// depNode 嵌入依赖树中的一个节点
type depNode struct {
	RouterDependant bool                `json:"routerDependant"`
	Dependencies    map[string]*depNode `json:"dependencies"`
}

func decodeArtifact(b64 string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("解码 base64 失败: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("解析 JSON 失败: %v", err)
	}
	return nil
}

// ExtractArtifacts 从已嵌入常量的路由器运行时文件文本中提取三个产物
func ExtractArtifacts(routerText string) (*Artifacts, error) {
	a := &Artifacts{}
	for _, c := range []struct {
		name string
		dst  *string
	}{
		{"DEPENDENCY_TREE_BASE64", &a.DependencyTreeB64},
		{"IVS_MAPPING_BASE64", &a.IVSMappingB64},
		{"PRECOMPUTED_HASHES_BASE64", &a.PrecomputedHashesB64},
	} {
		re := regexp.MustCompile(c.name + `\s*=\s*["']([^"']*)["']`)
		m := re.FindStringSubmatch(routerText)
		if m == nil {
			return nil, fmt.Errorf("运行时文件缺少常量 %s", c.name)
		}
		*c.dst = m[1]
	}
	return a, nil
}
