// cmd/scenectl/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Corphon/SceneForge/internal/app"
	"github.com/Corphon/SceneForge/internal/config"
	"github.com/Corphon/SceneForge/internal/utils"
)

// cliOptions 全局命令行参数，覆盖环境变量中的配置
type cliOptions struct {
	dataDir  string
	store    string
	provider string
	model    string
	verbose  bool
}

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("✗ "), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "scenectl",
		Short: "Manage anchor libraries and synthesise scenes from the terminal",
		Long: `scenectl drives the SceneForge pipeline without the HTTP server.

Examples:
  scenectl library list characters
  scenectl library add-character --name Mira --look "green apron"
  scenectl parse template.md --save
  scenectl generate --concept "A barista pulls the perfect shot"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.dataDir, "data-dir", "", "data directory (defaults to DATA_DIR)")
	flags.StringVar(&opts.store, "store", "", "storage backend: file, sqlite or memory")
	flags.StringVar(&opts.provider, "provider", "", "LLM provider override")
	flags.StringVar(&opts.model, "model", "", "LLM model override")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newLibraryCmd(opts),
		newParseCmd(opts),
		newGenerateCmd(opts),
	)
	return root
}

// build 加载配置并按依赖顺序组装服务
func (o *cliOptions) build() (*app.Services, error) {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	utils.GetLogger().SetLogLevel(utils.ParseLogLevel(level))

	if err := config.InitConfig(o.dataDir); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}
	cfg := config.GetCurrentConfig()
	if o.store != "" {
		cfg.StoreBackend = o.store
	}
	if o.provider != "" {
		cfg.LLMProvider = o.provider
	}
	if o.model != "" {
		cfg.LLMConfig["default_model"] = o.model
	}

	return app.BuildServices(cfg, nil)
}

func orDash(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "-"
	}
	return s
}
