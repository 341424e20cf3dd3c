package router

import (
	"strings"
	"testing"
)

// TestExtractArtifacts 从运行时文件文本中提取三个常量，两种引号风格都接受
func TestExtractArtifacts(t *testing.T) {
	text := `// 路由器运行时
const DEPENDENCY_TREE_BASE64 = "dHJlZQ==";
const IVS_MAPPING_BASE64 = 'aXZz';
let PRECOMPUTED_HASHES_BASE64="cHJl";
function routerCall(cipherText, fileId) {}
`
	a, err := ExtractArtifacts(text)
	if err != nil {
		t.Fatalf("提取产物失败: %v", err)
	}
	if a.DependencyTreeB64 != "dHJlZQ==" {
		t.Errorf("依赖树常量 = %q, 应为 dHJlZQ==", a.DependencyTreeB64)
	}
	if a.IVSMappingB64 != "aXZz" {
		t.Errorf("IV 映射常量 = %q, 应为 aXZz", a.IVSMappingB64)
	}
	if a.PrecomputedHashesB64 != "cHJl" {
		t.Errorf("预计算表常量 = %q, 应为 cHJl", a.PrecomputedHashesB64)
	}
}

// TestExtractArtifactsMissingConstant 缺少任一常量都报错并指明名字
func TestExtractArtifactsMissingConstant(t *testing.T) {
	text := `const DEPENDENCY_TREE_BASE64 = "dHJlZQ==";
const IVS_MAPPING_BASE64 = "aXZz";
`
	_, err := ExtractArtifacts(text)
	if err == nil {
		t.Fatal("缺少常量应报错")
	}
	if !strings.Contains(err.Error(), "PRECOMPUTED_HASHES_BASE64") {
		t.Errorf("错误信息应指明缺失的常量名: %v", err)
	}
}
