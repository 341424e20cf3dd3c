package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"router-call-protector/ledger"
	"router-call-protector/protector"
	"router-call-protector/server"
)

func printLogo() {
	fmt.Println()
	fmt.Println("\033[1;35m██████╗  ██████╗██████╗ \033[0m")
	fmt.Println("\033[1;35m██╔══██╗██╔════╝██╔══██╗\033[0m")
	fmt.Println("\033[1;35m██████╔╝██║     ██████╔╝\033[0m")
	fmt.Println("\033[1;35m██╔══██╗██║     ██╔═══╝ \033[0m")
	fmt.Println("\033[1;35m██║  ██║╚██████╗██║     \033[0m")
	fmt.Println("\033[1;35m╚═╝  ╚═╝ ╚═════╝╚═╝     \033[0m")
	fmt.Println()
	fmt.Println("   \033[1;33m━━━ Router Call Protector ━━━\033[0m")
	fmt.Println()
	fmt.Println("     \033[90m路由调用加密与防篡改保护工具\033[0m")
	fmt.Println("     \033[90mVersion 1.0.0\033[0m")
	fmt.Println()
}

// checkAndHandleExistingDir 检查输出目录是否存在，如果存在则询问用户是否覆盖
func checkAndHandleExistingDir(outDir string) error {
	if _, err := os.Stat(outDir); err == nil {
		// 目录存在
		fmt.Printf("\n\033[33m⚠️  警告: 输出目录已存在: %s\033[0m\n", outDir)
		fmt.Print("是否删除现有目录并继续? [y/N]: ")

		var response string
		fmt.Scanln(&response)
		response = strings.ToLower(strings.TrimSpace(response))

		if response == "y" || response == "yes" {
			fmt.Printf("正在删除目录: %s\n", outDir)
			if err := os.RemoveAll(outDir); err != nil {
				return fmt.Errorf("删除目录失败: %v", err)
			}
			fmt.Println("\033[32m✓ 目录已删除\033[0m")
		} else {
			return fmt.Errorf("用户取消操作")
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("用法: protector <子命令> [选项] [参数]")
	fmt.Println()
	fmt.Println("子命令:")
	fmt.Println("  run [项目目录]              执行完整保护构建 (默认当前目录)")
	fmt.Println("  serve <输出目录>            托管保护输出并启动防篡改校验")
	fmt.Println("  verify <项目目录>           对照构建台账校验输出目录")
	fmt.Println("  history                     列出最近的构建记录")
	fmt.Println()
	fmt.Println("run 选项:")
	fmt.Println("  -o string                   输出目录 (默认: <项目目录>/protected)")
	fmt.Println("  -marker string              间接调用标记函数名 (默认: routerCall)")
	fmt.Println("  -router string              路由器运行时文件名 (默认: router.js)")
	fmt.Println("  -ext string                 脚本文件后缀 (默认: .js)")
	fmt.Println("  -exclude string             要排除的文件模式 (逗号分隔, 例如: -exclude '*.min.js,vendor*')")
	fmt.Println("  -skip-ledger                不记录构建台账")
	fmt.Println("  -y                          跳过覆盖确认")
	fmt.Println()
	fmt.Println("serve 选项:")
	fmt.Println("  -addr string                监听地址 (默认: :8480)")
	fmt.Println("  -router string              路由器运行时文件名 (默认: router.js)")
	fmt.Println("  -ext string                 脚本文件后缀 (默认: .js)")
	fmt.Println("  -verify-timeout int         等待实时哈希的超时毫秒数 (默认: 10000)")
	fmt.Println("  -verify-interval int        就绪后的安定间隔毫秒数 (默认: 500)")
	fmt.Println()
	fmt.Println("verify / history 选项:")
	fmt.Println("  -ledger string              构建台账数据库路径 (默认: protector.db)")
	fmt.Println("  -n int                      history 显示的记录数 (默认: 20)")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 🚀 保护构建 - 扫描、加密并打包分发副本")
	fmt.Println("  ./protector run ./my-site")
	fmt.Println()
	fmt.Println("  # 指定输出目录并跳过覆盖确认")
	fmt.Println("  ./protector run -o ./dist -y ./my-site")
	fmt.Println()
	fmt.Println("  # 托管保护输出并启动防篡改校验")
	fmt.Println("  ./protector serve ./my-site/protected")
	fmt.Println()
	fmt.Println("  # 对照最近一次构建校验输出目录")
	fmt.Println("  ./protector verify ./my-site")
	fmt.Println()
	fmt.Println("详细文档: README.md")
}

func main() {
	// 显示 Logo
	printLogo()

	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "verify":
		cmdVerify(os.Args[2:])
	case "history":
		cmdHistory(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("未知子命令: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		outputDir  = fs.String("o", "", "输出目录 (默认: <项目目录>/protected)")
		marker     = fs.String("marker", "", "间接调用标记函数名")
		routerFile = fs.String("router", "", "路由器运行时文件名")
		scriptExt  = fs.String("ext", "", "脚本文件后缀")
		exclude    = fs.String("exclude", "", "要排除的文件模式 (逗号分隔)")
		skipLedger = fs.Bool("skip-ledger", false, "不记录构建台账")
		skipPrompt = fs.Bool("y", false, "跳过覆盖确认")
	)
	fs.Usage = printUsage
	fs.Parse(args)

	projectRoot := "."
	if fs.NArg() >= 1 {
		projectRoot = fs.Arg(0)
	}

	// 验证项目目录
	info, err := os.Stat(projectRoot)
	if err != nil {
		log.Fatalf("错误: 无法访问项目根目录 %s: %v", projectRoot, err)
	}
	if !info.IsDir() {
		log.Fatalf("错误: 项目根路径必须是一个目录: %s", projectRoot)
	}
	if abs, err := filepath.Abs(projectRoot); err == nil {
		projectRoot = abs
	}

	config, err := protector.LoadConfig(projectRoot)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}
	if *marker != "" {
		config.Marker = *marker
	}
	if *routerFile != "" {
		config.RouterFile = *routerFile
	}
	if *scriptExt != "" {
		config.ScriptExt = *scriptExt
	}
	if *skipLedger {
		config.SkipLedger = true
	}

	// 解析排除模式
	if *exclude != "" {
		excludeList := strings.Split(*exclude, ",")
		for i := range excludeList {
			excludeList[i] = strings.TrimSpace(excludeList[i])
		}
		config.ExcludePatterns = append(config.ExcludePatterns, excludeList...)
	}

	// 设置输出目录
	outDir := *outputDir
	if outDir == "" {
		outDir = filepath.Join(projectRoot, config.OutputDirName)
	}

	// 检查输出目录是否已存在
	if !*skipPrompt {
		if err := checkAndHandleExistingDir(outDir); err != nil {
			log.Fatalf("错误: %v", err)
		}
	}

	// 创建保护器
	p := protector.New(projectRoot, outDir, config)

	// 打印配置
	printConfiguration(projectRoot, p.OutputDir(), config)

	// 执行保护构建
	fmt.Println("开始保护构建...")
	if err := p.Run(); err != nil {
		log.Fatalf("错误: %v", err)
	}

	// 打印统计信息
	stats := p.GetStatistics()
	printStatistics(stats)

	if !config.SkipLedger {
		recordLedger(p, projectRoot, config)
	}

	fmt.Println("\n✅ 保护构建完成!")
	fmt.Printf("分发副本位于: %s\n", p.OutputDir())
	fmt.Println("\n提示: 使用 './protector serve' 可以托管输出并启动防篡改校验")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		addr           = fs.String("addr", "", "监听地址")
		routerFile     = fs.String("router", "", "路由器运行时文件名")
		scriptExt      = fs.String("ext", "", "脚本文件后缀")
		verifyTimeout  = fs.Int("verify-timeout", 0, "等待实时哈希的超时毫秒数")
		verifyInterval = fs.Int("verify-interval", 0, "就绪后的安定间隔毫秒数")
	)
	fs.Usage = printUsage
	fs.Parse(args)

	if fs.NArg() < 1 {
		log.Fatal("错误: 请指定保护输出目录")
	}
	outputDir := fs.Arg(0)

	info, err := os.Stat(outputDir)
	if err != nil {
		log.Fatalf("错误: 无法访问输出目录 %s: %v", outputDir, err)
	}
	if !info.IsDir() {
		log.Fatalf("错误: 输出路径必须是一个目录: %s", outputDir)
	}

	// 输出目录里没有配置文件，这里主要吃环境变量与默认值
	config, err := protector.LoadConfig(outputDir)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}

	opts := server.Options{
		Addr:           config.ServeAddr,
		OutputDir:      outputDir,
		RouterFile:     config.RouterFile,
		ScriptExt:      config.ScriptExt,
		VerifyTimeout:  time.Duration(config.VerifyTimeoutMS) * time.Millisecond,
		VerifyInterval: time.Duration(config.VerifyIntervalMS) * time.Millisecond,
	}
	if *addr != "" {
		opts.Addr = *addr
	}
	if *routerFile != "" {
		opts.RouterFile = *routerFile
	}
	if *scriptExt != "" {
		opts.ScriptExt = *scriptExt
	}
	if *verifyTimeout > 0 {
		opts.VerifyTimeout = time.Duration(*verifyTimeout) * time.Millisecond
	}
	if *verifyInterval > 0 {
		opts.VerifyInterval = time.Duration(*verifyInterval) * time.Millisecond
	}

	srv, err := server.New(opts)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}

	fmt.Printf("🌐 开发服务器启动: http://localhost%s\n", opts.Addr)
	fmt.Println("   哈希上报: POST /guard/hashes 或 WebSocket /guard/ws")
	fmt.Println("   校验状态: GET /guard/status")
	fmt.Println()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("错误: %v", err)
	}
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	ledgerPath := fs.String("ledger", "", "构建台账数据库路径")
	fs.Usage = printUsage
	fs.Parse(args)

	if fs.NArg() < 1 {
		log.Fatal("错误: 请指定项目目录")
	}
	projectRoot := fs.Arg(0)
	if abs, err := filepath.Abs(projectRoot); err == nil {
		projectRoot = abs
	}

	config, err := protector.LoadConfig(projectRoot)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}
	if *ledgerPath != "" {
		config.LedgerPath = *ledgerPath
	}

	store, err := ledger.Open(config.LedgerPath)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}
	defer store.Close()

	run, err := store.LastRun(projectRoot)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}
	recorded, err := store.HashesForRun(run.ID)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}
	current, err := protector.HashDir(run.OutputDir, config.ScriptExt, config.RouterFile)
	if err != nil {
		log.Fatalf("错误: 重新计算输出哈希失败: %v", err)
	}

	fmt.Printf("对照构建 %s (%s)\n", run.ID, time.Unix(run.StartedAt, 0).Format("2006-01-02 15:04:05"))
	fmt.Printf("输出目录: %s\n\n", run.OutputDir)

	mismatches := ledger.Diff(recorded, current)
	if len(mismatches) == 0 {
		fmt.Printf("✅ 校验通过: %d 个文件与台账一致\n", len(recorded))
		return
	}
	for _, m := range mismatches {
		if m.Actual == "" {
			fmt.Printf("❌ %s: 文件缺失\n", m.FileName)
			continue
		}
		fmt.Printf("❌ %s: 哈希不一致\n", m.FileName)
	}
	os.Exit(1)
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	ledgerPath := fs.String("ledger", "", "构建台账数据库路径")
	limit := fs.Int("n", 20, "显示的记录数")
	fs.Usage = printUsage
	fs.Parse(args)

	config, err := protector.LoadConfig(".")
	if err != nil {
		log.Fatalf("错误: %v", err)
	}
	if *ledgerPath != "" {
		config.LedgerPath = *ledgerPath
	}

	store, err := ledger.Open(config.LedgerPath)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(*limit)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("还没有构建记录")
		return
	}

	fmt.Println("========================================")
	fmt.Println("   构建历史")
	fmt.Println("========================================")
	for _, run := range runs {
		fmt.Printf("%s  %s\n", time.Unix(run.StartedAt, 0).Format("2006-01-02 15:04:05"), run.ID)
		fmt.Printf("  项目: %s\n", run.ProjectRoot)
		fmt.Printf("  脚本文件: %d | 路由器文件: %d | 加密调用: %d\n",
			run.ScriptFiles, run.RouterFiles, run.CallSites)
	}
}

// recordLedger 把本次构建写入台账。台账失败不影响已完成的构建，只告警。
func recordLedger(p *protector.Protector, projectRoot string, config *protector.Config) {
	store, err := ledger.Open(config.LedgerPath)
	if err != nil {
		log.Printf("警告: %v", err)
		return
	}
	defer store.Close()

	stats := p.GetStatistics()
	run := &ledger.Run{
		ID:          p.RunID(),
		StartedAt:   p.StartedAt(),
		ProjectRoot: projectRoot,
		OutputDir:   p.OutputDir(),
		ScriptFiles: stats.ScriptFiles,
		RouterFiles: stats.RouterFiles,
		CallSites:   stats.EncryptedCalls,
	}
	if err := store.RecordRun(run, p.PrecomputedHashes()); err != nil {
		log.Printf("警告: 记录构建台账失败: %v", err)
		return
	}
	fmt.Printf("构建台账已记录: %s (run %s)\n", config.LedgerPath, p.RunID())
}

func printConfiguration(projectRoot, outputDir string, config *protector.Config) {
	fmt.Println("========================================")
	fmt.Println("   路由调用保护器")
	fmt.Println("========================================")
	fmt.Printf("输入:  %s\n", projectRoot)
	fmt.Printf("输出:  %s\n", outputDir)
	fmt.Println()
	fmt.Println("配置选项:")
	fmt.Printf("  调用标记:         %s\n", config.Marker)
	fmt.Printf("  脚本后缀:         %s\n", config.ScriptExt)
	fmt.Printf("  路由器文件:       %s\n", config.RouterFile)
	fmt.Printf("  记录台账:         %v\n", !config.SkipLedger)
	if len(config.ExcludePatterns) > 0 {
		fmt.Printf("  排除模式:         %v\n", config.ExcludePatterns)
	}
	fmt.Println()
}

func printStatistics(stats *protector.Statistics) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("   保护统计")
	fmt.Println("========================================")
	fmt.Printf("脚本文件:   %d\n", stats.ScriptFiles)
	fmt.Printf("路由器文件: %d\n", stats.RouterFiles)
	fmt.Printf("加密调用:   %d\n", stats.EncryptedCalls)
	fmt.Printf("依赖边:     %d\n", stats.EdgesFound)
	fmt.Printf("预计算哈希: %d\n", stats.HashedFiles)
	if stats.SkippedFiles > 0 {
		fmt.Printf("跳过文件:   %d\n", stats.SkippedFiles)
	}
}
