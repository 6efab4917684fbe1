// Command repodigest はリポジトリ更新の要約ツールのWebフロントエンドを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/repodigest/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "repodigest: %v\n", err)
		os.Exit(1)
	}
}
