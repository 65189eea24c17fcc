package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func setupEnv(t *testing.T, redisURL string) {
	t.Helper()
	t.Setenv("DB_DIALECT", "sqlite")
	t.Setenv("DB_SQLITE_PATH", filepath.Join(t.TempDir(), "ctl.sqlite"))
	t.Setenv("REDIS_URL", redisURL)
	t.Setenv("NOTIFY_MODE", "log")
	t.Setenv("MEDIA_BUCKET", "")
	t.Setenv("LOG_TO_FILE", "false")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decode(t *testing.T, s string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(s), v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
}

func TestMatchLifecycle(t *testing.T) {
	setupEnv(t, "")

	if _, _, err := execute(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, _, err := execute(t, "match", "challenge", "b", "--as", "a", "--name", "Ann", "--target-name", "Bob")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	var created struct {
		Match struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"match"`
		Intents []struct {
			TargetPlayerID string `json:"targetPlayerId"`
		} `json:"intents"`
	}
	decode(t, out, &created)
	if created.Match.Status != "waiting" || len(created.Intents) != 1 || created.Intents[0].TargetPlayerID != "b" {
		t.Fatalf("challenge output = %s", out)
	}
	id := created.Match.ID

	if _, _, err := execute(t, "match", "accept", id, "--as", "b"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, _, err := execute(t, "match", "set", id, "--as", "a", "--media", "clips/a1.mp4"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// wrong player is a reported rule failure
	_, errOut, err := execute(t, "match", "set", id, "--as", "a", "--media", "clips/a2.mp4")
	if err == nil {
		t.Fatalf("second set should fail")
	}
	var failure struct {
		Error string `json:"error"`
	}
	decode(t, errOut, &failure)
	if failure.Error == "" || failure.Error == "INTERNAL" {
		t.Fatalf("failure = %s", errOut)
	}

	out, _, err = execute(t, "match", "show", id)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var shown struct {
		Match struct {
			Phase  string `json:"phase"`
			OnTurn string `json:"onTurn"`
		} `json:"match"`
		Attempts []struct {
			Kind string `json:"kind"`
		} `json:"attempts"`
	}
	decode(t, out, &shown)
	if shown.Match.Phase != "respond_trick" || shown.Match.OnTurn != "b" || len(shown.Attempts) != 1 {
		t.Fatalf("show output = %s", out)
	}

	out, _, err = execute(t, "sweep", "all")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, `"forfeited": 0`) {
		t.Fatalf("sweep output = %s", out)
	}
}

func TestRemoteNeedsRedis(t *testing.T) {
	setupEnv(t, "")
	if _, _, err := execute(t, "remote", "find", "--as", "a"); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}

func TestRemoteFind(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	setupEnv(t, "redis://"+mr.Addr())

	out, _, err := execute(t, "remote", "find", "--as", "a", "--name", "Ann")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	var res struct {
		Created bool `json:"created"`
		Match   struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"match"`
	}
	decode(t, out, &res)
	if !res.Created || res.Match.Status != "waiting" {
		t.Fatalf("find output = %s", out)
	}

	out, _, err = execute(t, "remote", "find", "--as", "b", "--name", "Bob")
	if err != nil {
		t.Fatalf("second find: %v", err)
	}
	var joined struct {
		Joined bool `json:"joined"`
		Match  struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"match"`
	}
	decode(t, out, &joined)
	if !joined.Joined || joined.Match.ID != res.Match.ID || joined.Match.Status != "active" {
		t.Fatalf("join output = %s", out)
	}
}

func TestPlayerSetName(t *testing.T) {
	setupEnv(t, "")
	out, _, err := execute(t, "player", "set-name", "u1", "Ann")
	if err != nil {
		t.Fatalf("set-name: %v", err)
	}
	if !strings.Contains(out, `"name": "Ann"`) {
		t.Fatalf("output = %s", out)
	}
}
