package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{name: "引数なしはserve", args: []string{}, want: CommandServe},
		{name: "serve", args: []string{"serve"}, want: CommandServe},
		{name: "worker", args: []string{"worker"}, want: CommandWorker},
		{name: "migrate", args: []string{"migrate"}, want: CommandMigrate},
		{name: "healthcheck", args: []string{"healthcheck"}, want: CommandHealthcheck},
		{name: "大文字小文字を区別しない", args: []string{"Worker"}, want: CommandWorker},
		{name: "--helpはhelp", args: []string{"--help"}, want: CommandHelp},
		{name: "不明なコマンドはserve", args: []string{"unknown"}, want: CommandServe},
		{name: "余分な引数は無視する", args: []string{"worker", "--flag", "value"}, want: CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestPrintUsage_ListsAllCommands(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)

	for _, cmd := range []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck, CommandHelp} {
		if !strings.Contains(buf.String(), string(cmd)) {
			t.Errorf("usage should mention %q:\n%s", cmd, buf.String())
		}
	}
}
