package protector

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Protector 是路由调用保护器的主结构体
type Protector struct {
	// 分析索引
	fileContents  map[string]string   // 文件完整路径 -> 源文本
	declaredFuncs map[string][]string // 文件完整路径 -> 声明的函数名列表
	functionIndex map[string]string   // 函数名 -> 首个声明该函数的文件
	baseNameIndex map[string]string   // 文件名 -> 完整路径
	routerFlags   map[string]bool     // 文件完整路径 -> 是否为路由器依赖文件

	// 标记模式（按配置的标记函数名编译）
	reDescriptorSQ *regexp.Regexp // 单引号描述符字面量
	reDescriptorDQ *regexp.Regexp // 双引号描述符字面量
	reSiteSQ       *regexp.Regexp // 单引号完整调用点（描述符 + 被调文件标识）
	reSiteDQ       *regexp.Regexp // 双引号完整调用点

	// 依赖图
	tree  DependencyTree
	edges []DependencyEdge

	// 密钥材料
	keys  map[string][]byte // 文件键 -> AES-256 密钥（仅构建期持有，不随产物分发）
	masks map[string][]byte // 文件键 -> 公开掩码
	ivs   IVMapping

	// 预计算哈希表（运行期防篡改校验的对照基准）
	precomputed map[string]string

	// 打包产物（Run 完成后可用）
	artifacts *BuildArtifacts

	// 全构建唯一的密文集合
	cipherSeen map[string]bool

	// 内容哈希缓存
	hashCache *lru.Cache[string, string]

	// 构建标识
	runID     string
	startedAt int64

	// 统计计数
	encryptedCalls int
	skippedFiles   int
	copiedFiles    int

	// 路径配置
	projectRoot string
	outputDir   string

	// 配置选项
	Config *Config
}

// DependencyNode 表示沿一条遍历路径到达的一个脚本文件
type DependencyNode struct {
	RouterDependant bool                       `json:"routerDependant"`
	Dependencies    map[string]*DependencyNode `json:"dependencies"`
}

// DependencyTree 依赖树，每个项目脚本文件对应一个根条目
type DependencyTree map[string]*DependencyNode

// DependencyEdge 记录一条调用/包含关系，仅用于诊断输出
type DependencyEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Function string `json:"function"`
}

// IVMapping 路由器依赖文件的加密映射。
// 每个文件条目中，保留键 "mask" 存放 32 字节掩码的十六进制，
// 其余键为 base64 密文，值为对应的 base64 IV。
type IVMapping map[string]map[string]string

// Statistics 存储保护统计信息
type Statistics struct {
	RunID          string
	ScriptFiles    int
	RouterFiles    int
	EncryptedCalls int
	EdgesFound     int
	HashedFiles    int
	SkippedFiles   int
	CopiedFiles    int
}

// BuildArtifacts 打包阶段产出的三个 base64 常量
type BuildArtifacts struct {
	DependencyTreeB64    string
	IVSMappingB64        string
	PrecomputedHashesB64 string
}
