package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iabetor/sherpa-tts/internal/audio"
	"github.com/iabetor/sherpa-tts/internal/config"
	"github.com/iabetor/sherpa-tts/internal/database"
	"github.com/iabetor/sherpa-tts/internal/datadir"
	"github.com/iabetor/sherpa-tts/internal/lexicon"
	"github.com/iabetor/sherpa-tts/internal/logger"
	"github.com/iabetor/sherpa-tts/internal/native"
	"github.com/iabetor/sherpa-tts/internal/tts"
)

func main() {
	configPath := flag.String("config", "configs/sherpa-tts.yaml", "配置文件路径")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	code := 1
	switch args[0] {
	case "say":
		code = cmdSay(cfg, args[1:])
	case "lexicon":
		code = cmdLexicon(cfg, args[1:])
	case "provision":
		code = cmdProvision(cfg)
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
	}
	logger.Sync()
	os.Exit(code)
}

// loadConfig 在默认配置文件不存在时使用内置默认值。
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) && path == "configs/sherpa-tts.yaml" {
		return config.Default(), nil
	}
	return cfg, err
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "sherpa-tts 离线语音合成工具")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "用法: sherpa-tts [-config <path>] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  say [-mode m] [-voice v] [-speed s] [-timeout d] <文本>  合成语音并输出 WAV 路径")
	fmt.Fprintln(os.Stderr, "  lexicon add <词> <音素...>                           添加或更新用户词条")
	fmt.Fprintln(os.Stderr, "  lexicon delete <词>                                  删除用户词条")
	fmt.Fprintln(os.Stderr, "  lexicon list                                         列出用户词典")
	fmt.Fprintln(os.Stderr, "  lexicon import <文件>                                用文件替换用户词典")
	fmt.Fprintln(os.Stderr, "  lexicon export [路径]                                导出用户词典")
	fmt.Fprintln(os.Stderr, "  provision                                            准备 espeak-ng 数据目录")
}

func newProvisioner(cfg *config.Config) *datadir.Provisioner {
	var source fs.FS
	if _, err := os.Stat(cfg.Data.EspeakSource); err == nil {
		source = os.DirFS(cfg.Data.EspeakSource)
	}
	return datadir.New(cfg.Data.Dir, source)
}

const (
	minSpeed = 0.5
	maxSpeed = 2.0
)

func cmdSay(cfg *config.Config, args []string) int {
	flags := flag.NewFlagSet("say", flag.ExitOnError)
	mode := flags.String("mode", cfg.Engine.Mode, "前端模式: auto, lexicon_first, espeak_only")
	voice := flags.String("voice", cfg.Engine.Voice, "音色/语言")
	speed := flags.Float64("speed", 0, "语速，0 表示使用配置值")
	timeout := flags.Duration("timeout", 2*time.Minute, "合成超时")
	flags.Parse(args)

	text := strings.TrimSpace(strings.Join(flags.Args(), " "))
	if text == "" {
		fmt.Fprintln(os.Stderr, "用法: sherpa-tts say [-mode m] [-voice v] [-speed s] <文本>")
		return 1
	}

	if *speed != 0 {
		*speed = min(max(*speed, minSpeed), maxSpeed)
	}
	cfg.Engine.Mode = *mode
	cfg.Engine.Voice = *voice
	req, err := cfg.TTSConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		return 1
	}
	if req.LexiconPath == "" {
		req.LexiconPath = exportUserLexicon(cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 监听系统信号，取消进行中的合成
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Infof("[main] 收到信号 %v，正在取消...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var opts []native.Option
	opts = append(opts, native.WithEspeakBinary(cfg.Phonemizer.EspeakBinary))
	if cfg.Phonemizer.Disabled {
		opts = append(opts, native.WithPhonemizer(nil))
	}

	svc := tts.NewService(native.NewBackend(opts...), newProvisioner(cfg), cfg.Output.Dir)
	defer svc.Release()

	start := time.Now()
	out, err := svc.GenerateSpeech(ctx, req, text, float32(*speed))
	if err != nil {
		printFailure(err)
		return 1
	}

	fmt.Printf("%s\n", out.Path)
	fmt.Printf("  采样率: %d Hz\n", out.SampleRate)
	if info, err := audio.ReadWaveInfo(out.Path); err == nil {
		fmt.Printf("  时长:   %v\n", info.Duration().Round(time.Millisecond))
	}
	if st, err := os.Stat(out.Path); err == nil {
		fmt.Printf("  大小:   %s\n", humanize.Bytes(uint64(st.Size())))
	}
	fmt.Printf("  耗时:   %v\n", time.Since(start).Round(time.Millisecond))
	return 0
}

func printFailure(err error) {
	var te *tts.Error
	if !errors.As(err, &te) {
		fmt.Fprintf(os.Stderr, "合成失败: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "合成失败: %s (code=%d, %s)\n", te.Kind, te.Code, te.Kind.Group())
	if te.Message != "" {
		fmt.Fprintf(os.Stderr, "  详情: %s\n", te.Message)
	}
	if te.Err != nil {
		fmt.Fprintf(os.Stderr, "  原因: %v\n", te.Err)
	}
	fmt.Fprintf(os.Stderr, "  建议: %s\n", te.Kind.Hint())
}

// exportUserLexicon 在用户词典非空时导出为文件供引擎加载，失败时返回空路径。
func exportUserLexicon(cfg *config.Config) string {
	if _, err := os.Stat(cfg.Lexicon.DBPath); err != nil {
		return ""
	}
	store, closeDB, err := openStore(cfg)
	if err != nil {
		logger.Warnf("[main] 打开用户词典失败: %v", err)
		return ""
	}
	defer closeDB()

	if store.Count() == 0 {
		return ""
	}
	path, err := store.Export(cfg.Lexicon.ExportPath)
	if err != nil {
		logger.Warnf("[main] 导出用户词典失败: %v", err)
		return ""
	}
	return path
}

func openStore(cfg *config.Config) (*lexicon.Store, func(), error) {
	db, err := database.Open(cfg.Lexicon.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return lexicon.NewStore(db), func() { db.Close() }, nil
}

func cmdLexicon(cfg *config.Config, args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	store, closeDB, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开用户词典失败: %v\n", err)
		return 1
	}
	defer closeDB()

	switch args[0] {
	case "add":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "用法: sherpa-tts lexicon add <词> <音素...>")
			return 1
		}
		if err := store.Put(args[1], args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "添加失败: %v\n", err)
			return 1
		}
		fmt.Printf("词条 %s 已保存。\n", args[1])
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: sherpa-tts lexicon delete <词>")
			return 1
		}
		ok, err := store.Delete(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "删除失败: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Printf("词条 %s 不存在。\n", args[1])
			return 0
		}
		fmt.Printf("词条 %s 已删除。\n", args[1])
	case "list":
		entries, err := store.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "列出词典失败: %v\n", err)
			return 1
		}
		if len(entries) == 0 {
			fmt.Println("用户词典为空。")
			return 0
		}
		fmt.Printf("用户词典共 %d 个词条:\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  %s\n", e.Line())
		}
	case "import":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: sherpa-tts lexicon import <文件>")
			return 1
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取文件失败: %v\n", err)
			return 1
		}
		n, err := store.ImportText(string(data))
		if err != nil {
			var le *lexicon.InvalidLineError
			if errors.As(err, &le) {
				fmt.Fprintf(os.Stderr, "第 %d 行格式错误: %q\n", le.Line, le.Text)
			} else {
				fmt.Fprintf(os.Stderr, "导入失败: %v\n", err)
			}
			return 1
		}
		fmt.Printf("已导入 %d 个词条。\n", n)
	case "export":
		path := cfg.Lexicon.ExportPath
		if len(args) >= 2 {
			path = args[1]
		}
		out, err := store.Export(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "导出失败: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Fprintf(os.Stderr, "未知的 lexicon 子命令: %s\n", args[0])
		return 1
	}
	return 0
}

func cmdProvision(cfg *config.Config) int {
	dir, err := newProvisioner(cfg).Ensure()
	if err != nil {
		fmt.Fprintf(os.Stderr, "准备数据目录失败: %v\n", err)
		return 1
	}
	fmt.Println(dir)
	return 0
}
