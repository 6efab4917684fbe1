package app

import (
	"fmt"
	"io"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモード。更新取得の画面APIを提供する。
	CommandServe Command = "serve"
	// CommandWorker は実行履歴と一時ファイルのクリーンアップを定期実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は実行履歴テーブルのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中サーバーの/healthを確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

var commandSummaries = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "Webサーバーを起動する（デフォルト）"},
	{CommandWorker, "クリーンアップワーカーを起動する"},
	{CommandMigrate, "実行履歴のマイグレーションを適用する（DATABASE_URL必須）"},
	{CommandHealthcheck, "起動中のサーバーのヘルスチェックを行う"},
	{CommandHelp, "この使い方を表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 大文字小文字は区別しない。引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch c := Command(strings.ToLower(strings.TrimSpace(args[0]))); c {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck:
		return c
	case CommandHelp, "-h", "--help":
		return CommandHelp
	default:
		return CommandServe
	}
}

// PrintUsage はサブコマンドの一覧をwに書き出す。
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: repodigest [command]")
	fmt.Fprintln(w)
	for _, s := range commandSummaries {
		fmt.Fprintf(w, "  %-12s %s\n", s.cmd, s.summary)
	}
}
