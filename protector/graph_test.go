package protector

import (
	"path/filepath"
	"testing"
)

// TestCycleTermination 互相调用的两个文件必须能终止建树，
// 同一条分支内同一文件绝不二次展开。
func TestCycleTermination(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.js": "function fa() { fb(); }\n",
		"b.js": "function fb() { fa(); }\n",
	})
	p := newTestProtector(t, root)
	analyze(t, p)

	aPath := filepath.Join(root, "a.js")
	bPath := filepath.Join(root, "b.js")

	rootA := p.tree[aPath]
	if rootA == nil {
		t.Fatal("a.js 应有根节点")
	}
	nodeB := rootA.Dependencies[bPath]
	if nodeB == nil {
		t.Fatal("a.js 应依赖 b.js")
	}
	// b 内对 a 的回调在本分支上已访问，不再展开
	if len(nodeB.Dependencies) != 0 {
		t.Errorf("环上的回边不应展开, 得到 %d 个子节点", len(nodeB.Dependencies))
	}
}

// TestDiamondRepeatsAcrossBranchesFoldsOnce 菱形依赖沿兄弟分支重复出现，
// 但分支文件列表去重后每个文件只出现一次。
func TestDiamondRepeatsAcrossBranchesFoldsOnce(t *testing.T) {
	root := writeProject(t, map[string]string{
		"r.js":      "routerCall('x-fx-null-null', 'x');\nrouterCall('y-fy-null-null', 'y');\n",
		"x.js":      "function fx() { common(); }\n",
		"y.js":      "function fy() { common(); }\n",
		"common.js": "function common() {}\n",
	})
	p := newTestProtector(t, root)
	analyze(t, p)

	rPath := filepath.Join(root, "r.js")
	node := p.tree[rPath]
	if node == nil {
		t.Fatal("r.js 应有根节点")
	}

	// common.js 在 x、y 两条分支上各出现一次
	xNode := node.Dependencies[filepath.Join(root, "x.js")]
	yNode := node.Dependencies[filepath.Join(root, "y.js")]
	if xNode == nil || yNode == nil {
		t.Fatal("r.js 应同时依赖 x.js 与 y.js")
	}
	commonPath := filepath.Join(root, "common.js")
	if xNode.Dependencies[commonPath] == nil || yNode.Dependencies[commonPath] == nil {
		t.Fatal("common.js 应在两条分支上都出现")
	}

	branch := p.branchFiles(rPath, node)
	seen := make(map[string]int)
	for _, f := range branch {
		seen[f]++
	}
	if seen[commonPath] != 1 {
		t.Errorf("common.js 在分支列表中出现 %d 次, 应恰好 1 次", seen[commonPath])
	}
	if len(branch) != 3 {
		t.Errorf("分支文件数 = %d, 应为 3（x、y、common）: %v", len(branch), branch)
	}
}

// TestUnresolvableDescriptorIgnored 指向不存在文件的描述符令牌静默忽略，不记边
func TestUnresolvableDescriptorIgnored(t *testing.T) {
	root := writeProject(t, map[string]string{
		"r.js": "routerCall('ghost-fn-null-null', 'ghost');\n",
	})
	p := newTestProtector(t, root)
	analyze(t, p)

	node := p.tree[filepath.Join(root, "r.js")]
	if node == nil {
		t.Fatal("r.js 应有根节点")
	}
	if len(node.Dependencies) != 0 {
		t.Errorf("解析不到的目标不应产生依赖, 得到 %d 个", len(node.Dependencies))
	}
	if len(p.edges) != 0 {
		t.Errorf("不应记录任何调用边, 得到 %d 条", len(p.edges))
	}
}

// TestRouterNodesTraversedNotCollected 路由器依赖节点照样深入，
// 但自身不进入分支文件列表，其后代照常收集。
func TestRouterNodesTraversedNotCollected(t *testing.T) {
	root := writeProject(t, map[string]string{
		"top.js":  "routerCall('mid-fm-null-null', 'mid');\n",
		"mid.js":  "function fm() { leaf(); }\nrouterCall('ghost-g-null-null', 'g');\n",
		"leaf.js": "function leaf() {}\n",
	})
	p := newTestProtector(t, root)
	analyze(t, p)

	topPath := filepath.Join(root, "top.js")
	branch := p.branchFiles(topPath, p.tree[topPath])

	want := map[string]bool{filepath.Join(root, "leaf.js"): true}
	if len(branch) != 1 || !want[branch[0]] {
		t.Errorf("分支列表应只含 leaf.js, 得到 %v", branch)
	}
}
