package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mmeshcher/load-velocity/internal/config"
)

func parseConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	os.Args = append([]string{"velocity"}, args...)

	cfg, err := config.Parse()
	require.NoError(t, err)
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	output := filepath.Join(dir, "output.txt")

	lines := []string{
		`{"id":"15887","customer_id":"528","load_amount":"$3318.47","time":"2000-01-01T00:00:00Z"}`,
		`{"id":"30081","customer_id":"154","load_amount":"$1413.18","time":"2000-01-01T01:01:22Z"}`,
		`{"id":"26540","customer_id":"426","load_amount":"$404.56","time":"2000-01-01T02:02:44Z"}`,
		`{"id":"10694","customer_id":"1","load_amount":"$785.11","time":"2000-01-01T03:04:06Z"}`,
		`{"id":"15887","customer_id":"528","load_amount":"$3318.47","time":"2000-01-01T04:05:28Z"}`,
		`{"id":"6928","customer_id":"528","load_amount":"$1716.53","time":"2000-01-01T05:06:50Z"}`,
		`{"id":"broken"`,
	}
	require.NoError(t, os.WriteFile(input, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	require.NoError(t, os.WriteFile(output, []byte("previous run output\n"), 0o600))

	cfg := parseConfig(t, "-i", input, "-o", output)

	require.NoError(t, run(context.Background(), cfg, zaptest.NewLogger(t)))

	got, err := os.ReadFile(output)
	require.NoError(t, err)

	want := strings.Join([]string{
		`{"id":"15887","customer_id":"528","accepted":true}`,
		`{"id":"30081","customer_id":"154","accepted":true}`,
		`{"id":"26540","customer_id":"426","accepted":true}`,
		`{"id":"10694","customer_id":"1","accepted":true}`,
		`{"id":"15887","customer_id":"528","accepted":false}`,
		`{"id":"6928","customer_id":"528","accepted":false}`,
	}, "\n") + "\n"
	assert.Equal(t, want, string(got))
}

func TestRun_IgnoreDuplicates(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	output := filepath.Join(dir, "output.txt")

	lines := []string{
		`{"id":"1","customer_id":"1","load_amount":"$10","time":"2000-01-01T00:00:00Z"}`,
		`{"id":"1","customer_id":"1","load_amount":"$10","time":"2000-01-01T00:00:01Z"}`,
	}
	require.NoError(t, os.WriteFile(input, []byte(strings.Join(lines, "\n")), 0o600))

	cfg := parseConfig(t, "-i", input, "-o", output, "-ignore-duplicates")

	require.NoError(t, run(context.Background(), cfg, zaptest.NewLogger(t)))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","customer_id":"1","accepted":true}`+"\n", string(got))
}

func TestRun_MissingInput(t *testing.T) {
	dir := t.TempDir()
	cfg := parseConfig(t, "-i", filepath.Join(dir, "missing.txt"), "-o", filepath.Join(dir, "out.txt"))

	assert.Error(t, run(context.Background(), cfg, zaptest.NewLogger(t)))
}

func TestRun_UnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte(""), 0o600))

	cfg := parseConfig(t, "-i", input, "-o", filepath.Join(dir, "no-such-dir", "out.txt"))

	assert.Error(t, run(context.Background(), cfg, zaptest.NewLogger(t)))
}
