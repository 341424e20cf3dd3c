package protector

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// 嵌入路由器运行时文件的三个常量名
const (
	ConstDependencyTree    = "DEPENDENCY_TREE_BASE64"
	ConstIVSMapping        = "IVS_MAPPING_BASE64"
	ConstPrecomputedHashes = "PRECOMPUTED_HASHES_BASE64"
)

// copyProject 把项目树镜像复制到输出目录。输出目录每次全新重建。
// 排除模式只作用于分析，不影响复制：被排除的文件仍是应用的一部分。
func (p *Protector) copyProject() error {
	if err := os.RemoveAll(p.outputDir); err != nil {
		return fmt.Errorf("清理输出目录失败: %v", err)
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %v", err)
	}

	ledgerBase := filepath.Base(p.Config.LedgerPath)
	err := filepath.Walk(p.projectRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("警告: 访问 %s 失败: %v，已跳过", path, err)
			return nil
		}
		if path == p.projectRoot {
			return nil
		}
		base := filepath.Base(path)
		if info.IsDir() {
			if path == p.outputDir || strings.HasPrefix(base, ".") {
				return filepath.SkipDir
			}
			target, err := p.outputPathFor(path)
			if err != nil {
				return err
			}
			return os.MkdirAll(target, 0755)
		}
		// 工具自身的文件不进产物
		if base == ConfigFileName || base == ".env" || strings.HasPrefix(base, ledgerBase) {
			return nil
		}
		target, err := p.outputPathFor(path)
		if err != nil {
			return err
		}
		if err := copyFile(path, target); err != nil {
			return fmt.Errorf("复制 %s 失败: %v", path, err)
		}
		p.copiedFiles++
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("已复制 %d 个文件到 %s", p.copiedFiles, p.outputDir)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// buildArtifacts 把依赖树、IV 映射与预计算哈希表序列化为 base64(UTF-8 JSON)
func (p *Protector) buildArtifacts() (*BuildArtifacts, error) {
	treeJSON, err := json.Marshal(p.tree)
	if err != nil {
		return nil, fmt.Errorf("序列化依赖树失败: %v", err)
	}
	ivsJSON, err := json.Marshal(p.ivs)
	if err != nil {
		return nil, fmt.Errorf("序列化 IV 映射失败: %v", err)
	}
	preJSON, err := json.Marshal(p.precomputed)
	if err != nil {
		return nil, fmt.Errorf("序列化预计算哈希表失败: %v", err)
	}
	return &BuildArtifacts{
		DependencyTreeB64:    base64.StdEncoding.EncodeToString(treeJSON),
		IVSMappingB64:        base64.StdEncoding.EncodeToString(ivsJSON),
		PrecomputedHashesB64: base64.StdEncoding.EncodeToString(preJSON),
	}, nil
}

// embedArtifacts 把三个常量写入输出目录中的路由器运行时文件
func (p *Protector) embedArtifacts(a *BuildArtifacts) error {
	routerOut := p.findRouterOutput()
	if routerOut == "" {
		log.Printf("警告: 输出目录中未找到路由器运行时文件 %s，产物常量未嵌入", p.Config.RouterFile)
		return nil
	}

	data, err := os.ReadFile(routerOut)
	if err != nil {
		return fmt.Errorf("读取路由器运行时文件失败: %v", err)
	}
	text := string(data)
	for _, c := range []struct{ name, value string }{
		{ConstDependencyTree, a.DependencyTreeB64},
		{ConstIVSMapping, a.IVSMappingB64},
		{ConstPrecomputedHashes, a.PrecomputedHashesB64},
	} {
		text = embedConstant(text, c.name, c.value)
	}
	if err := os.WriteFile(routerOut, []byte(text), 0644); err != nil {
		return fmt.Errorf("写回路由器运行时文件失败: %v", err)
	}
	log.Printf("产物常量已嵌入 %s", routerOut)
	return nil
}

// embedConstant 替换已有常量赋值；文件没有该常量时在文件头注入声明
func embedConstant(text, name, value string) string {
	re := regexp.MustCompile(name + `\s*=\s*["'][^"']*["']`)
	if re.MatchString(text) {
		return re.ReplaceAllLiteralString(text, name+` = "`+value+`"`)
	}
	return "const " + name + ` = "` + value + `";` + "\n" + text
}

// findRouterOutput 在输出目录中定位路由器运行时文件（首个裸名匹配）
func (p *Protector) findRouterOutput() string {
	found := ""
	filepath.Walk(p.outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || found != "" || info == nil || info.IsDir() {
			return nil
		}
		if filepath.Base(path) == p.Config.RouterFile {
			found = path
		}
		return nil
	})
	return found
}
