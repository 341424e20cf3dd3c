package protector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName 项目根目录下的配置文件名
const ConfigFileName = "protector.yaml"

// Config 存储保护配置
type Config struct {
	Marker          string   `yaml:"marker"`           // 间接调用标记函数名
	ScriptExt       string   `yaml:"script_ext"`       // 脚本文件后缀
	RouterFile      string   `yaml:"router_file"`      // 路由器运行时文件名
	OutputDirName   string   `yaml:"output_dir"`       // 输出子目录名
	ExcludePatterns []string `yaml:"exclude"`          // 要排除的文件模式
	LedgerPath      string   `yaml:"ledger_path"`      // 构建台账数据库路径
	SkipLedger      bool     `yaml:"skip_ledger"`      // 不记录构建台账
	ServeAddr       string   `yaml:"serve_addr"`       // 开发服务器监听地址
	VerifyTimeoutMS int      `yaml:"verify_timeout_ms"` // 校验器等待实时哈希的超时（毫秒）
	VerifyIntervalMS int     `yaml:"verify_interval_ms"` // 校验器就绪后的安定间隔（毫秒）
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Marker == "" {
		c.Marker = "routerCall"
	}
	if c.ScriptExt == "" {
		c.ScriptExt = ".js"
	}
	if c.RouterFile == "" {
		c.RouterFile = "router" + c.ScriptExt
	}
	if c.OutputDirName == "" {
		c.OutputDirName = "protected"
	}
	if c.LedgerPath == "" {
		c.LedgerPath = "protector.db"
	}
	if c.ServeAddr == "" {
		c.ServeAddr = ":8480"
	}
	if c.VerifyTimeoutMS <= 0 {
		c.VerifyTimeoutMS = 10000
	}
	if c.VerifyIntervalMS <= 0 {
		c.VerifyIntervalMS = 500
	}
}

// LoadConfig 读取项目根目录下的 protector.yaml（可缺省），
// 再应用 PROTECTOR_* 环境变量覆盖，最后补齐默认值。
func LoadConfig(projectRoot string) (*Config, error) {
	c := &Config{}

	path := filepath.Join(projectRoot, ConfigFileName)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %v", path, err)
	}

	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

// applyEnv 应用环境变量覆盖（.env 由入口程序通过 godotenv 预先载入）
func (c *Config) applyEnv() {
	if v := os.Getenv("PROTECTOR_MARKER"); v != "" {
		c.Marker = v
	}
	if v := os.Getenv("PROTECTOR_SCRIPT_EXT"); v != "" {
		c.ScriptExt = v
	}
	if v := os.Getenv("PROTECTOR_ROUTER_FILE"); v != "" {
		c.RouterFile = v
	}
	if v := os.Getenv("PROTECTOR_OUTPUT_DIR"); v != "" {
		c.OutputDirName = v
	}
	if v := os.Getenv("PROTECTOR_EXCLUDE"); v != "" {
		c.ExcludePatterns = splitPatterns(v)
	}
	if v := os.Getenv("PROTECTOR_LEDGER_PATH"); v != "" {
		c.LedgerPath = v
	}
	if v := os.Getenv("PROTECTOR_SERVE_ADDR"); v != "" {
		c.ServeAddr = v
	}
	if v := os.Getenv("PROTECTOR_VERIFY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.VerifyTimeoutMS = n
		}
	}
	if v := os.Getenv("PROTECTOR_VERIFY_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.VerifyIntervalMS = n
		}
	}
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
