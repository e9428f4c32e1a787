package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestDoAnnounce_RequiresTopicAndPort(t *testing.T) {
	var buf bytes.Buffer
	err := doAnnounce([]string{}, &buf)
	if err == nil {
		t.Fatal("expected an error with no positional args")
	}
}

func TestDoAnnounce_RejectsInvalidTopic(t *testing.T) {
	cfgPath := writeRunTestConfig(t, testYAML)
	var buf bytes.Buffer
	err := doAnnounce([]string{"--config", cfgPath, "not-hex!", "4000"}, &buf)
	if err == nil {
		t.Fatal("expected an error for a non-hex topic")
	}
	if !strings.Contains(err.Error(), "invalid topic") {
		t.Errorf("error = %v, want it to mention the invalid topic", err)
	}
}

func TestDoAnnounce_RejectsInvalidPort(t *testing.T) {
	cfgPath := writeRunTestConfig(t, testYAML)
	var buf bytes.Buffer
	err := doAnnounce([]string{"--config", cfgPath, "abcd", "not-a-port"}, &buf)
	if err == nil {
		t.Fatal("expected an error for a non-numeric port")
	}
}

func TestDoAnnounce_MissingConfig(t *testing.T) {
	var buf bytes.Buffer
	err := doAnnounce([]string{"--config", "/nonexistent/ddisc.yaml", "abcd", "4000"}, &buf)
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestDoAnnounce_TimesOutAgainstUnreachableTracker(t *testing.T) {
	cfgPath := writeRunTestConfig(t, testYAML)
	var buf bytes.Buffer
	err := doAnnounce([]string{"--config", cfgPath, "--timeout", "200ms", "abcd", "4000"}, &buf)
	if err == nil {
		t.Fatal("expected an error announcing against an unreachable tracker")
	}
}
