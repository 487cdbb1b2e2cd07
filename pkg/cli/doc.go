/*
Package cli provides command-line helpers for the incipit command.

Output Formatting:

Commands that accept --format render their results through a Formatter.
Results implementing Table print as aligned columns in text mode and as
rows in CSV mode:

	format, err := cli.ParseOutputFormat(flagFormat)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, routes)

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "Checking backends")
	progress.Start(int64(len(backends)))
	for range backends {
		// probe
		progress.Increment()
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(logger)
	defer stop()

The context is cancelled on the first SIGINT or SIGTERM; a second signal
exits immediately.

Errors:

ConfigError and CommandError tag failures so main can pick an exit status
with ExitCode.
*/
package cli
