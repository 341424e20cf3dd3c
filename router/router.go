package router

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

// 运行期失败的哨兵错误。所有失败都记录日志并以错误值返回，
// 从不恐慌；不调度本身就是安全结果。
var (
	ErrMappingMissing  = errors.New("IV 映射中没有该文件的条目")
	ErrMaskMissing     = errors.New("映射条目缺少掩码")
	ErrNoBranch        = errors.New("依赖树中没有匹配的根节点")
	ErrIVMissing       = errors.New("映射中没有该密文对应的 IV")
	ErrDecryptFailed   = errors.New("解密失败")
	ErrBadDescriptor   = errors.New("调用描述符无效")
	ErrUnknownFunction = errors.New("注册表中没有该函数")
)

// Options 运行时选项
type Options struct {
	ScriptSuffix string // 归一文件标识时补齐的脚本后缀，默认 ".js"
}

// Router 路由器运行时。构造后产物只读，可被并发调用方安全使用；
// 每次 Invoke 都是独立流水线，调用之间不保留任何状态。
type Router struct {
	tree   map[string]*depNode
	ivs    map[string]map[string]string
	pre    map[string]string
	store  *HashStore
	reg    *Registry
	suffix string
}

// New 从三个嵌入产物构造路由器运行时
func New(a *Artifacts, store *HashStore, reg *Registry, opts *Options) (*Router, error) {
	if a == nil {
		return nil, errors.New("缺少运行时产物")
	}
	if store == nil {
		store = NewHashStore()
	}
	if reg == nil {
		reg = Default()
	}
	suffix := ".js"
	if opts != nil && opts.ScriptSuffix != "" {
		suffix = opts.ScriptSuffix
	}

	r := &Router{store: store, reg: reg, suffix: suffix}
	if err := decodeArtifact(a.DependencyTreeB64, &r.tree); err != nil {
		return nil, fmt.Errorf("解码依赖树失败: %v", err)
	}
	if err := decodeArtifact(a.IVSMappingB64, &r.ivs); err != nil {
		return nil, fmt.Errorf("解码 IV 映射失败: %v", err)
	}
	if err := decodeArtifact(a.PrecomputedHashesB64, &r.pre); err != nil {
		return nil, fmt.Errorf("解码预计算哈希表失败: %v", err)
	}
	return r, nil
}

// Store 返回运行时读取的实时哈希表
func (r *Router) Store() *HashStore {
	return r.store
}

// PrecomputedHashes 返回嵌入的预计算哈希表副本，防篡改校验的对照基准
func (r *Router) PrecomputedHashes() map[string]string {
	out := make(map[string]string, len(r.pre))
	for k, v := range r.pre {
		out[k] = v
	}
	return out
}

// Invoke 解密并调度一次路由调用：归一文件键，定位映射条目，
// 收集分支文件并折叠实时哈希，套公开掩码还原密钥，取 IV 解密，
// 解析描述符，最后经注册表按名调度。任一步失败记日志并提前返回。
func (r *Router) Invoke(ciphertext, calleeFileID string, dynamicArgs ...any) error {
	fileKey := normalizeFileKey(calleeFileID, r.suffix)

	entry, fileKey, err := r.resolveEntry(fileKey, ciphertext)
	if err != nil {
		log.Printf("路由器: %v", err)
		return err
	}
	maskHex, ok := entry["mask"]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrMaskMissing, fileKey)
		log.Printf("路由器: %v", err)
		return err
	}

	branch, err := r.collectBranchFiles(fileKey)
	if err != nil {
		log.Printf("路由器: %v", err)
		return err
	}

	// 尚无实时哈希的分支文件跳过而非失败：哈希收集与页面加载赛跑
	var live []string
	for _, f := range branch {
		if h, ok := r.store.Get(f); ok {
			live = append(live, h)
		}
	}

	key, err := ReconstructKey(live, maskHex)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMaskMissing, err)
		log.Printf("路由器: %v", err)
		return err
	}

	ivB64, ok := entry[ciphertext]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrIVMissing, fileKey)
		log.Printf("路由器: %v", err)
		return err
	}

	plain, err := decryptCBC(ciphertext, ivB64, key)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		log.Printf("路由器: %v", err)
		return err
	}

	desc, err := parseDescriptor(plain, dynamicArgs)
	if err != nil {
		log.Printf("路由器: %v", err)
		return err
	}

	fn, ok := r.reg.Lookup(desc.function)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownFunction, desc.function)
		log.Printf("路由器: %v", err)
		return err
	}
	fn(desc.args...)
	log.Printf("路由器: 已调度 %s（%d 个实参）", desc.function, len(desc.args))
	return nil
}

// resolveEntry 定位映射条目：先按归一化文件键直查；
// 查不到再按密文精确检索各条目（密文本身就是查找键），
// 命中后以该条目的文件键继续后续流程。
func (r *Router) resolveEntry(fileKey, ciphertext string) (map[string]string, string, error) {
	if entry, ok := r.ivs[fileKey]; ok {
		return entry, fileKey, nil
	}
	for _, k := range sortedKeys(r.ivs) {
		if _, ok := r.ivs[k][ciphertext]; ok {
			return r.ivs[k], k, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrMappingMissing, fileKey)
}

// collectBranchFiles 按文件键后缀匹配定位依赖树根（首个匹配即止），
// 用与构建一致的逐分支复制遍历收集非路由器依赖节点的裸文件名，
// 去重后返回（每个依赖恰好折叠一次）。
func (r *Router) collectBranchFiles(fileKey string) ([]string, error) {
	roots := make([]string, 0, len(r.tree))
	for k := range r.tree {
		roots = append(roots, k)
	}
	sort.Strings(roots)

	for _, root := range roots {
		if !strings.HasSuffix(root, fileKey) {
			continue
		}
		var collected []string
		visited := map[string]bool{root: true}
		collectNode(root, r.tree[root], visited, &collected)

		names := make([]string, len(collected))
		for i, p := range collected {
			names[i] = bareName(p)
		}
		return uniqueStrings(names), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoBranch, fileKey)
}

// collectNode 收集子树中非路由器依赖节点的路径。
// visited 按值传递（逐分支复制），与构建期遍历语义一致；
// 路由器依赖节点照样深入，但自身不进入结果。
func collectNode(path string, node *depNode, visited map[string]bool, out *[]string) {
	if node == nil {
		return
	}
	if !node.RouterDependant {
		*out = append(*out, path)
	}
	for child, childNode := range node.Dependencies {
		if visited[child] {
			continue
		}
		branch := make(map[string]bool, len(visited)+1)
		for k := range visited {
			branch[k] = true
		}
		branch[child] = true
		collectNode(child, childNode, branch, out)
	}
}

// bareName 取路径最后一段。兼容两种分隔符，嵌入产物的路径可能来自其他平台。
func bareName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// normalizeFileKey 将文件标识归一为文件键形式
func normalizeFileKey(id, suffix string) string {
	if strings.HasSuffix(id, suffix) {
		return id
	}
	return id + suffix
}

func uniqueStrings(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
