package main

import (
	"bytes"
	"strings"
	"testing"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootHelpListsCommands(t *testing.T) {
	output, err := runRootCommandForTest("--help")
	if err != nil {
		t.Fatalf("root --help: %v\nOutput:\n%s", err, output)
	}

	for _, want := range []string{"onboard", "chat", "gateway", "status", "version"} {
		if !strings.Contains(output, want) {
			t.Fatalf("help output missing %q:\n%s", want, output)
		}
	}
}

func TestRootWithoutSubcommandFails(t *testing.T) {
	_, err := runRootCommandForTest()
	if err == nil {
		t.Fatal("bare invocation must demand a subcommand")
	}
}

func TestChatHelpShowsMessageFlag(t *testing.T) {
	output, err := runRootCommandForTest("chat", "--help")
	if err != nil {
		t.Fatalf("chat --help: %v", err)
	}
	if !strings.Contains(output, "--message") {
		t.Fatalf("chat help missing --message flag:\n%s", output)
	}
}
