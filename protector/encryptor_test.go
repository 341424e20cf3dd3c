package protector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runEncrypt 执行到调用点加密为止的各阶段
func runEncrypt(t *testing.T, p *Protector) {
	t.Helper()
	buildThroughKeys(t, p)
	if err := p.encryptRouterFiles(); err != nil {
		t.Fatalf("加密调用点失败: %v", err)
	}
}

// TestEncryptRewritesBothQuoteStyles 两种引号风格的调用点都被重写，
// 被调文件标识与引号原样保留。
func TestEncryptRewritesBothQuoteStyles(t *testing.T) {
	root := writeProject(t, map[string]string{
		"fileA.js": "function fa() {}\n",
		"file3.js": "routerCall('fileA-fa-null-null', 'x');\n" +
			"routerCall(\"fileA-fa-string-hi\", \"y\");\n",
	})
	p := newTestProtector(t, root)
	runEncrypt(t, p)

	out, err := os.ReadFile(filepath.Join(p.OutputDir(), "file3.js"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)

	if strings.Contains(text, "fileA-fa-null-null") || strings.Contains(text, "fileA-fa-string-hi") {
		t.Fatal("明文描述符不应留在输出中")
	}
	if !strings.Contains(text, "', 'x')") {
		t.Error("单引号被调标识应原样保留")
	}
	if !strings.Contains(text, "\", \"y\")") {
		t.Error("双引号被调标识应原样保留")
	}
	if p.encryptedCalls != 2 {
		t.Errorf("加密调用数 = %d, 应为 2", p.encryptedCalls)
	}

	entry := p.ivs["file3.js"]
	// 掩码 + 两个密文
	if len(entry) != 3 {
		t.Errorf("映射条目数 = %d, 应为 3", len(entry))
	}
}

// TestIdenticalDescriptorsDistinctCiphertexts 相同明文的两处调用点
// 各自拿到新 IV，密文互不相同。
func TestIdenticalDescriptorsDistinctCiphertexts(t *testing.T) {
	root := writeProject(t, map[string]string{
		"fileA.js": "function fa() {}\n",
		"file3.js": "routerCall('fileA-fa-null-null', 'x');\n" +
			"routerCall('fileA-fa-null-null', 'x');\n",
	})
	p := newTestProtector(t, root)
	runEncrypt(t, p)

	entry := p.ivs["file3.js"]
	var ciphers, ivs []string
	for k, v := range entry {
		if k == "mask" {
			continue
		}
		ciphers = append(ciphers, k)
		ivs = append(ivs, v)
	}
	if len(ciphers) != 2 {
		t.Fatalf("密文数 = %d, 应为 2", len(ciphers))
	}
	if ciphers[0] == ciphers[1] {
		t.Error("相同明文应产出不同密文")
	}
	if ivs[0] == ivs[1] {
		t.Error("两处调用点应使用不同 IV")
	}
}

// TestFilesWithoutSitesUntouched 没有调用点的路由器依赖文件保持原样
func TestFilesWithoutSitesUntouched(t *testing.T) {
	source := "var hint = \"routerCall('占位\";\n"
	root := writeProject(t, map[string]string{
		"odd.js": source,
	})
	p := newTestProtector(t, root)
	runEncrypt(t, p)

	out, err := os.ReadFile(filepath.Join(p.OutputDir(), "odd.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != source {
		t.Error("无完整调用点的文件内容不应被改写")
	}
}
