package main

import "testing"

func TestBuildRootCmd(t *testing.T) {
	cmd := buildRootCmd()
	if cmd.Use != "realtime" {
		t.Errorf("Use = %q, want realtime", cmd.Use)
	}

	want := map[string]bool{"watch": false, "status": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := resolveConfigPath("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("flag should win, got %q", got)
	}

	t.Setenv("REALTIME_CONFIG", "/etc/realtime.yaml")
	if got := resolveConfigPath(""); got != "/etc/realtime.yaml" {
		t.Errorf("env should apply, got %q", got)
	}

	t.Setenv("REALTIME_CONFIG", "")
	if got := resolveConfigPath(""); got != "realtime.yaml" {
		t.Errorf("default should apply, got %q", got)
	}
}
