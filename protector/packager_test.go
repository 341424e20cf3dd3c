package protector

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestCopyProjectMirrorsAndSkips 镜像复制保留子目录结构，
// 工具自身的文件与点目录不进产物。
func TestCopyProjectMirrorsAndSkips(t *testing.T) {
	root := writeProject(t, map[string]string{
		"top.js":           "function top() {}\n",
		"sub/keep.js":      "function keep() {}\n",
		"protector.yaml":   "marker: routerCall\n",
		".env":             "PROTECTOR_MARKER=routerCall\n",
		"protector.db":     "db",
		"protector.db-wal": "wal",
		".git/blob.js":     "function hidden() {}\n",
	})
	p := newTestProtector(t, root)
	if err := p.copyProject(); err != nil {
		t.Fatalf("复制项目失败: %v", err)
	}

	for _, rel := range []string{"top.js", filepath.Join("sub", "keep.js")} {
		if _, err := os.Stat(filepath.Join(p.OutputDir(), rel)); err != nil {
			t.Errorf("产物中缺少 %s: %v", rel, err)
		}
	}
	for _, rel := range []string{"protector.yaml", ".env", "protector.db", "protector.db-wal", ".git"} {
		if _, err := os.Stat(filepath.Join(p.OutputDir(), rel)); !os.IsNotExist(err) {
			t.Errorf("%s 不应出现在产物中", rel)
		}
	}
	if p.copiedFiles != 2 {
		t.Errorf("复制文件数 = %d, 应为 2", p.copiedFiles)
	}
}

// TestEmbedConstantReplaceAndInject 已有常量赋值被替换，缺失时注入声明
func TestEmbedConstantReplaceAndInject(t *testing.T) {
	text := "const " + ConstDependencyTree + " = \"\";\n" +
		"let " + ConstIVSMapping + " = '';\n"

	text = embedConstant(text, ConstDependencyTree, "treeB64")
	text = embedConstant(text, ConstIVSMapping, "ivsB64")
	text = embedConstant(text, ConstPrecomputedHashes, "preB64")

	if !strings.Contains(text, "const "+ConstDependencyTree+" = \"treeB64\"") {
		t.Error("双引号赋值应被替换且保留原声明前缀")
	}
	if !strings.Contains(text, "let "+ConstIVSMapping+" = \"ivsB64\"") {
		t.Error("单引号赋值应被替换")
	}
	if !strings.HasPrefix(text, "const "+ConstPrecomputedHashes+" = \"preB64\";\n") {
		t.Error("缺失的常量应注入到文件头")
	}
	if strings.Contains(text, "\"\"") || strings.Contains(text, "''") {
		t.Error("空赋值不应残留")
	}
}

// TestPrecomputedTableExcludesRouterFile 预计算表覆盖最终脚本内容，
// 不含路由器运行时文件自身。
func TestPrecomputedTableExcludesRouterFile(t *testing.T) {
	root := writeProject(t, map[string]string{
		"file1.js":  "function funct1() {}\n",
		"file3.js":  "routerCall('file1-funct1-null-null', 'file2');\n",
		"router.js": routerStub,
	})
	p := newTestProtector(t, root)
	if err := p.Run(); err != nil {
		t.Fatalf("保护流程失败: %v", err)
	}

	pre := p.PrecomputedHashes()
	if _, ok := pre["router.js"]; ok {
		t.Error("路由器运行时文件不应进入预计算表")
	}
	if _, ok := pre["file1.js"]; !ok {
		t.Error("file1.js 应进入预计算表")
	}
	// 表对照的是改写后的最终内容
	got := fileSHA256Hex(t, filepath.Join(p.OutputDir(), "file3.js"))
	if pre["file3.js"] != got {
		t.Errorf("file3.js 预计算哈希 = %s, 产物实际 = %s", pre["file3.js"], got)
	}
}

// TestArtifactsDecodeAndEmbed 三个产物常量可解码回原始结构，
// 且全部嵌入输出目录中的路由器运行时文件。
func TestArtifactsDecodeAndEmbed(t *testing.T) {
	root := writeProject(t, map[string]string{
		"file1.js":  "function funct1() {}\n",
		"file3.js":  "routerCall('file1-funct1-null-null', 'file2');\n",
		"router.js": routerStub,
	})
	p := newTestProtector(t, root)
	if err := p.Run(); err != nil {
		t.Fatalf("保护流程失败: %v", err)
	}
	a := p.Artifacts()
	if a == nil {
		t.Fatal("Run 之后产物常量不应为空")
	}

	treeJSON, err := base64.StdEncoding.DecodeString(a.DependencyTreeB64)
	if err != nil {
		t.Fatalf("解码依赖树失败: %v", err)
	}
	var tree DependencyTree
	if err := json.Unmarshal(treeJSON, &tree); err != nil {
		t.Fatalf("反序列化依赖树失败: %v", err)
	}
	for _, want := range []string{"file1.js", "file3.js", "router.js"} {
		found := false
		for path := range tree {
			if filepath.Base(path) == want {
				found = true
			}
		}
		if !found {
			t.Errorf("依赖树缺少根条目 %s", want)
		}
	}

	ivsJSON, err := base64.StdEncoding.DecodeString(a.IVSMappingB64)
	if err != nil {
		t.Fatalf("解码 IV 映射失败: %v", err)
	}
	var ivs IVMapping
	if err := json.Unmarshal(ivsJSON, &ivs); err != nil {
		t.Fatalf("反序列化 IV 映射失败: %v", err)
	}
	if _, ok := ivs["file3.js"]; !ok {
		t.Error("IV 映射缺少 file3.js 条目")
	}

	routerOut, err := os.ReadFile(filepath.Join(p.OutputDir(), "router.js"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(routerOut)
	for name, payload := range map[string]string{
		ConstDependencyTree:    a.DependencyTreeB64,
		ConstIVSMapping:        a.IVSMappingB64,
		ConstPrecomputedHashes: a.PrecomputedHashesB64,
	} {
		if !strings.Contains(text, payload) {
			t.Errorf("路由器运行时文件未嵌入 %s", name)
		}
	}
}
