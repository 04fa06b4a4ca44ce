package main

import (
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := map[string]bool{
		"synth":      false,
		"encode-ref": false,
		"serve":      false,
		"health":     false,
	}
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

func TestRootCommandRegistersConfigFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{
		"config",
		"log-level",
		"backbone-backend",
		"backbone-model-path",
		"codec-model-path",
		"phoneme-language",
		"synth-chunk-frames",
		"synth-overlap-frames",
		"server-listen-addr",
	} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
}
