// 図書館管理システムのAPI Gatewayのエントリポイント。
// 外部からのリクエストを admin, borrower-service, librarian-service の
// いずれかに中継する。外部からアクセス可能な唯一のサービスとなる。
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nao1215/lmsgateway/internal/gateway"
	"github.com/nao1215/lmsgateway/pkg/telemetry"
	"github.com/spf13/cobra"
)

// telemetryFlushTimeout は終了時に未送信のスパンを書き出す最大時間。
const telemetryFlushTimeout = 5 * time.Second

// options はコマンドラインで指定された起動オプション。
type options struct {
	port            string
	envFile         string
	envFileExplicit bool
	servicesFile    string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newRootCmd はgatewayコマンドを生成する。
func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "図書館管理システムのAPI Gateway",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.envFileExplicit = cmd.Flags().Changed("env-file")
			if err := run(cmd.Context(), opts); err != nil {
				log.Printf("[Gateway] %v", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.port, "port", "", "リッスンポート（環境変数PORTより優先）")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "起動時に読み込む.envファイル")
	cmd.Flags().StringVar(&opts.servicesFile, "services", "", "サービス定義のYAMLファイル（環境変数GATEWAY_SERVICES_FILEより優先）")
	return cmd
}

// run は設定を読み込んでGatewayを起動し、シグナルを受けるまで待つ。
func run(ctx context.Context, opts options) error {
	if err := loadEnvFile(opts.envFile, opts.envFileExplicit); err != nil {
		return err
	}

	servicesFile := opts.servicesFile
	if servicesFile == "" {
		servicesFile = os.Getenv("GATEWAY_SERVICES_FILE")
	}
	cfg, err := gateway.LoadConfig(servicesFile)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: "gateway", Endpoint: cfg.OTLPEndpoint})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("[Gateway] トレースの書き出しに失敗: %v", err)
		}
	}()

	server, err := gateway.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("Gatewayサーバーの初期化に失敗: %w", err)
	}

	log.Printf("Gatewayサービスを起動します: :%s", cfg.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("Gatewayサービスの起動に失敗: %w", err)
	}
	log.Printf("Gatewayサービスを停止しました")
	return nil
}

// loadEnvFile は.envファイルを環境変数に読み込む。既に設定済みの環境変数は上書きしない。
// 明示的に指定されていないファイルが存在しない場合は何もしない。
func loadEnvFile(path string, explicit bool) error {
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}
	return nil
}
