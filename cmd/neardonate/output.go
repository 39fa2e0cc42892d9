package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

const defaultRPCTimeout = 20 * time.Second

// wantJSON reports whether the command should print JSON instead of text.
func wantJSON(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// stdout returns where command output goes.
func stdout(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// stderr returns where progress and summary lines go.
func stderr(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// outputJSON writes v as indented JSON, or the results of the --jq filter
// applied to it.
func outputJSON(c *cli.Context, v interface{}) error {
	filter := c.String("jq")
	if filter == "" {
		enc := json.NewEncoder(stdout(c))
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	code, err := compileJQ(filter)
	if err != nil {
		return err
	}

	// gojq only understands plain maps, slices and scalars
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to prepare jq input: %w", err)
	}

	enc := json.NewEncoder(stdout(c))
	enc.SetIndent("", "  ")
	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter %q failed: %w", filter, err)
		}
		// Bare strings print raw, like jq -r
		if s, isString := result.(string); isString {
			fmt.Fprintln(stdout(c), s)
			continue
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
}

// compileJQ parses and compiles a jq filter.
func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

// matchesJQ reports whether filter yields a truthy first result for v.
func matchesJQ(code *gojq.Code, v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return false
	}

	result, ok := code.Run(input).Next()
	if !ok {
		return false
	}
	if _, isErr := result.(error); isErr {
		return false
	}
	return isTruthy(result)
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// cliLogger returns a logger that only reports errors on stderr.
func cliLogger(c *cli.Context) *slog.Logger {
	return slog.New(slog.NewJSONHandler(stderr(c), &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
