package protector

import "log"

// buildDependencyTree 为每个脚本文件构建一棵依赖树根
func (p *Protector) buildDependencyTree() {
	for path := range p.fileContents {
		visited := map[string]bool{path: true}
		p.tree[path] = p.buildNode(path, visited)
	}
	log.Printf("依赖树构建完成: %d 个根节点, %d 条调用边", len(p.tree), len(p.edges))
}

// buildNode 递归展开一个文件的依赖节点。
// visited 按值传递（逐分支复制）：同一文件可以沿多条兄弟分支再次展开，
// 但同一条分支内绝不重复，以此在环状调用图上保证终止。
func (p *Protector) buildNode(path string, visited map[string]bool) *DependencyNode {
	node := &DependencyNode{
		RouterDependant: p.routerFlags[path],
		Dependencies:    make(map[string]*DependencyNode),
	}
	text, ok := p.fileContents[path]
	if !ok {
		return node
	}

	// 间接调用点：描述符首段指向被调文件
	for _, descriptor := range p.descriptorLiterals(text) {
		target, ok := p.resolveDescriptorTarget(descriptor)
		if !ok || target == path || visited[target] {
			continue
		}
		p.edges = append(p.edges, DependencyEdge{From: path, To: target, Function: descriptor})
		branch := cloneVisited(visited)
		branch[target] = true
		node.Dependencies[target] = p.buildNode(target, branch)
	}

	// 普通调用：非本地声明的标识符经全局函数索引解析
	for _, name := range p.calledIdents(text) {
		if p.declaredIn(path, name) {
			continue
		}
		target, ok := p.functionIndex[name]
		if !ok || target == path || visited[target] {
			continue
		}
		p.edges = append(p.edges, DependencyEdge{From: path, To: target, Function: name})
		branch := cloneVisited(visited)
		branch[target] = true
		node.Dependencies[target] = p.buildNode(target, branch)
	}

	return node
}

// collectBranch 收集一棵子树中所有非路由器依赖节点的路径。
// 遍历机制与构建完全一致（逐分支复制的访问集合）；
// 路由器依赖节点照样深入，但自身路径不进入结果。
func collectBranch(path string, node *DependencyNode, visited map[string]bool, out *[]string) {
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
		branch := cloneVisited(visited)
		branch[child] = true
		collectBranch(child, childNode, branch, out)
	}
}

// branchFiles 返回从根文件出发、去重后的分支文件列表（首次出现序）。
// 去重保证每个依赖在密钥折叠中恰好贡献一次，菱形依赖不会因
// 偶数次异或而自我抵消。
func (p *Protector) branchFiles(rootPath string, node *DependencyNode) []string {
	var collected []string
	visited := map[string]bool{rootPath: true}
	collectBranch(rootPath, node, visited, &collected)
	return uniqueStrings(collected)
}
