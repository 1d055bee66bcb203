package commands

import (
	"bytes"
	"testing"
)

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{"sweep": false, "expire": false, "reset-attempts": false, "ensure-indexes": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestResetAttempts_RequiresSessionID(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"reset-attempts"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err == nil {
		t.Fatal("Execute() error = nil, want an argument error")
	}
}
