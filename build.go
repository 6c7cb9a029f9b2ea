//go:build ignore

// build.go - Sales Forecast Build System
// Usage: go run build.go [-target=TARGET]
// Targets: all, forecast, web, sample, clean, test

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

const (
	version = "1.0.0"
	module  = "salesforecast"
)

var (
	distDir = "dist"

	// Executable names (key = source dir name under cmd/, value = output name)
	executables = map[string]string{
		"forecast": "forecast",
		"web":      "salesforecast-web",
	}

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	printHeader()
	startTime := time.Now()

	var err error
	switch *target {
	case "all":
		for _, name := range []string{"forecast", "web"} {
			if err = buildExecutable(name, *verbose); err != nil {
				break
			}
		}
	case "forecast", "web":
		err = buildExecutable(*target, *verbose)
	case "sample":
		err = generateSample(*verbose)
	case "clean":
		err = clean()
	case "test":
		err = runTests(*verbose)
	default:
		showHelp()
		os.Exit(1)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printHeader() {
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println(colorCyan + "     Sales Forecast - Build System        " + colorReset)
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println()
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

// buildExecutable compiles cmd/<name> into dist/, stamping the version and
// build time into the app package.
func buildExecutable(name string, verbose bool) error {
	out, ok := executables[name]
	if !ok {
		return fmt.Errorf("unknown executable %q", name)
	}
	if runtime.GOOS == "windows" {
		out += ".exe"
	}
	printInfo(fmt.Sprintf("Building %s...", name))

	if err := os.MkdirAll(distDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", distDir, err)
	}

	ldflags := fmt.Sprintf("-s -w -X %[1]s/internal/app.Version=%[2]s -X %[1]s/internal/app.BuildTime=%[3]s",
		module, version, time.Now().UTC().Format(time.RFC3339))
	args := []string{"build"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "-ldflags", ldflags, "-o", filepath.Join(distDir, out), "./cmd/"+name)

	if err := run("go", args...); err != nil {
		return fmt.Errorf("build %s: %w", name, err)
	}
	printSuccess(fmt.Sprintf("Built %s", filepath.Join(distDir, out)))
	return nil
}

// generateSample writes data/sales_data.csv with the forecast CLI.
func generateSample(verbose bool) error {
	printInfo("Generating sample dataset...")
	args := []string{"run", "./cmd/forecast", "generate", "-o", filepath.Join("data", "sales_data.csv")}
	if verbose {
		args = append(args, "--log-level", "debug")
	}
	return run("go", args...)
}

func clean() error {
	printInfo("Cleaning build artifacts...")
	for _, dir := range []string{distDir, "reports"} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	printSuccess("Build artifacts cleaned")
	return nil
}

func runTests(verbose bool) error {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	if err := run("go", args...); err != nil {
		return fmt.Errorf("go tests failed: %w", err)
	}
	printSuccess("All tests passed")
	return nil
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all       Build forecast and web (default)")
	fmt.Println("  forecast  Build the forecast CLI")
	fmt.Println("  web       Build the dashboard server")
	fmt.Println("  sample    Generate data/sales_data.csv")
	fmt.Println("  clean     Remove dist/ and reports/")
	fmt.Println("  test      Run all Go tests with the race detector")
}
