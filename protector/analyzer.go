package protector

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// 词法分析是有意的近似手段：不做完整语法解析，
// 宁可多报（多报只增加派生成本，不影响正确性）。
var (
	reDeclaredFunc = regexp.MustCompile(`function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
	reCalledIdent  = regexp.MustCompile(`([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
)

// scanProject 扫描项目脚本文件，建立内容、声明、调用与文件名索引，
// 并标记路由器依赖文件
func (p *Protector) scanProject() error {
	err := filepath.Walk(p.projectRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("警告: 访问 %s 失败: %v，已跳过", path, err)
			p.skippedFiles++
			return nil
		}
		if info.IsDir() {
			// 输出目录与点目录不参与扫描
			if path == p.outputDir {
				return filepath.SkipDir
			}
			if path != p.projectRoot && strings.HasPrefix(filepath.Base(path), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, p.Config.ScriptExt) {
			return nil
		}
		if p.shouldExcludeFile(path) {
			p.skippedFiles++
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("警告: 无法读取文件 %s: %v，已跳过", path, err)
			p.skippedFiles++
			return nil
		}
		text := string(data)
		p.fileContents[path] = text

		base := filepath.Base(path)
		if _, exists := p.baseNameIndex[base]; exists {
			log.Printf("警告: 文件名 %s 重复，%s 被忽略（文件名归一是跨组件查找键）", base, path)
		} else {
			p.baseNameIndex[base] = path
		}

		for _, m := range reDeclaredFunc.FindAllStringSubmatch(text, -1) {
			name := m[1]
			p.declaredFuncs[path] = append(p.declaredFuncs[path], name)
			if _, exists := p.functionIndex[name]; !exists {
				p.functionIndex[name] = path
			}
		}

		p.routerFlags[path] = p.isRouterDependent(path, text)
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("发现 %d 个脚本文件，其中 %d 个为路由器依赖文件", len(p.fileContents), p.routerFileCount())
	return nil
}

// isRouterDependent 判断文件是否为路由器依赖文件。
// 文本包含带引号的间接调用标记即算（纯文本检查，超集误报可接受）；
// 路由器运行时文件本身必定算作路由器依赖：它在打包阶段被改写嵌入产物，
// 内容随每次重建变化，绝不能混入任何密钥派生。
func (p *Protector) isRouterDependent(path, text string) bool {
	if filepath.Base(path) == p.Config.RouterFile {
		return true
	}
	marker := p.Config.Marker
	return strings.Contains(text, marker+"('") || strings.Contains(text, marker+`("`)
}

func (p *Protector) routerFileCount() int {
	n := 0
	for _, flagged := range p.routerFlags {
		if flagged {
			n++
		}
	}
	return n
}

// descriptorLiterals 提取文件文本中所有间接调用点的首参描述符字面量（保序去重）。
// 这里只要求首参是字面量；加密阶段另有更严的完整调用点匹配。
func (p *Protector) descriptorLiterals(text string) []string {
	var out []string
	for _, re := range []*regexp.Regexp{p.reDescriptorSQ, p.reDescriptorDQ} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out = append(out, m[1])
		}
	}
	return uniqueStrings(out)
}

// calledIdents 提取文件文本中所有形如 ident( 的被调标识符（保序去重）。
// 关键字与字符串内的伪匹配会在函数索引查找时自然落空。
func (p *Protector) calledIdents(text string) []string {
	var out []string
	for _, m := range reCalledIdent.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return uniqueStrings(out)
}

// declaredIn 判断函数名是否在该文件本地声明
func (p *Protector) declaredIn(path, name string) bool {
	for _, d := range p.declaredFuncs[path] {
		if d == name {
			return true
		}
	}
	return false
}

// resolveDescriptorTarget 把描述符的首个破折号分段解析为项目文件。
// 解析不到的令牌静默忽略：不完整的图只会降低保护强度，不会中断构建。
func (p *Protector) resolveDescriptorTarget(descriptor string) (string, bool) {
	token := descriptor
	if i := strings.Index(descriptor, "-"); i >= 0 {
		token = descriptor[:i]
	}
	if token == "" {
		return "", false
	}
	path, ok := p.baseNameIndex[normalizeFileKey(token, p.Config.ScriptExt)]
	return path, ok
}
