package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bgrewell/usage"
	iso "github.com/rstms/hybridiso"
	"github.com/rstms/hybridiso/pkg/logging"
	"github.com/rstms/hybridiso/pkg/manifest"
	"github.com/rstms/hybridiso/pkg/options"
	"github.com/theckman/yacspin"
	"golang.org/x/term"
)

var (
	version = "dev"
)

// truncateString truncates the input string to the specified max length.
// If truncation occurs, it prepends "..." to indicate the string has been shortened.
func truncateString(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	if maxLength <= 3 {
		return input[len(input)-maxLength:]
	}
	return "..." + input[len(input)-(maxLength-3):]
}

// CreateProgressCallback returns a ProgressCallback that updates the spinner's message.
func CreateProgressCallback(spinner *yacspin.Spinner) options.ProgressCallback {
	return func(
		currentFilename string,
		bytesTransferred int64,
		totalBytes int64,
		currentFileNumber int,
		totalFileCount int,
	) {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			width = 80
		}

		percent := 100.0
		if totalBytes > 0 {
			percent = float64(bytesTransferred) / float64(totalBytes) * 100
		}
		fixedPart := fmt.Sprintf(" [%d/%d] ", currentFileNumber, totalFileCount)
		suffixPart := fmt.Sprintf(" - %.2f%%", percent)

		availableSpace := width - len(fixedPart) - len(suffixPart) - 6
		if availableSpace < 10 {
			availableSpace = 10
		}

		spinner.Message(fixedPart + truncateString(currentFilename, availableSpace) + suffixPart)
	}
}

// InitializeSpinner sets up and starts the yacspin spinner.
func InitializeSpinner() (*yacspin.Spinner, error) {
	settings := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		ShowCursor:        false,
		SpinnerAtEnd:      false,
		CharSet:           yacspin.CharSets[14],
		Colors:            []string{"fgHiCyan"},
		StopColors:        []string{"fgHiGreen"},
		StopFailColors:    []string{"fgHiRed"},
		StopFailCharacter: "✗",
		StopCharacter:     "✓",
		Suffix:            " building",
	}

	spinner, err := yacspin.New(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create spinner: %w", err)
	}
	if err := spinner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start spinner: %w", err)
	}
	return spinner, nil
}

func main() {
	u := usage.NewUsage(
		usage.WithApplicationName("isobuild"),
		usage.WithApplicationDescription("isobuild v"+version+" writes a bootable ISO9660 image, optionally hybrid with an MBR and GPT, from a YAML manifest."),
	)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	debug := u.AddBooleanOption("v", "verbose", false, "Enable verbose (debug) logging", "", nil)
	trace := u.AddBooleanOption("vv", "trace", false, "Enable trace logging", "", nil)
	report := u.AddBooleanOption("l", "layout", false, "Print the sector layout of the image", "", nil)
	noColor := u.AddBooleanOption("nc", "no-color", false, "Disable colored output", "", nil)
	manifestPath := u.AddArgument(1, "manifest", "Path to the YAML manifest describing the image", "")
	outputPath := u.AddArgument(2, "output", "Path of the image to write", "")
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}

	if *help {
		u.PrintUsage()
		os.Exit(0)
	}

	if manifestPath == nil || *manifestPath == "" || outputPath == nil || *outputPath == "" {
		u.PrintError(fmt.Errorf("the <manifest> and <output> paths must be provided"))
		os.Exit(1)
	}

	useColor := !*noColor && term.IsTerminal(int(os.Stderr.Fd()))
	level := logging.LEVEL_INFO
	switch {
	case *trace:
		level = logging.LEVEL_TRACE
	case *debug:
		level = logging.LEVEL_DEBUG
	}
	logger := logging.NewSimpleLogger(os.Stderr, level, useColor)

	m, err := manifest.Load(*manifestPath)
	if err != nil {
		u.PrintError(err)
		os.Exit(1)
	}

	opts := append(m.Options(), options.WithLogger(logger))

	// The spinner and the log share the terminal, so it only runs at the default level.
	var spinner *yacspin.Spinner
	if level == logging.LEVEL_INFO {
		spinner, err = InitializeSpinner()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize spinner: %v\n", err)
			fmt.Fprintf(os.Stderr, "Progress updates will be disabled.\n")
		} else {
			opts = append(opts, options.WithProgress(CreateProgressCallback(spinner)))
		}
	}

	result, err := iso.BuildImage(*outputPath, m.ImageSpec(), m.Hybrid, opts...)
	if err != nil {
		if spinner != nil {
			spinner.StopFailMessage(fmt.Sprintf(" Failed to build image: %v", err))
			spinner.StopFail()
		} else {
			fmt.Fprintf(os.Stderr, "Failed to build image: %v\n", err)
		}
		os.Exit(1)
	}
	defer result.Close()

	if spinner != nil {
		spinner.StopMessage(fmt.Sprintf(" Image written to %s (%d sectors)", result.Path,
			result.Builder.TotalSectors()))
		spinner.Stop()
	}

	if *report {
		result.Builder.Regions().Report(os.Stdout, useColor)
	}
}
