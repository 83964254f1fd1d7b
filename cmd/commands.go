package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"uptofetch/internal"
	"uptofetch/transfer"
	"uptofetch/utils"
)

// errReported marks a failure that was already shown to the user
var errReported = errors.New("transfer failed")

var (
	searchPath  string
	searchLimit int
	outputDir   string
)

var infoCmd = &cobra.Command{
	Use:   "info <CODE|URL>",
	Short: "Show the name and size of a hosted file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newUptoboxClient(newHTTPClient(), nil)
		if err != nil {
			return err
		}

		info, err := client.FileMetadata(cmd.Context(), internal.ShareCode(args[0]))
		if err != nil {
			return userError(err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "📄 File: %s\n", info.Name)
		fmt.Fprintf(out, "📊 Size: %s\n", info.SizeLabel)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search the files of your account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}

		client, err := newUptoboxClient(newHTTPClient(), nil)
		if err != nil {
			return err
		}

		results, err := client.Search(cmd.Context(), searchPath, searchLimit, query)
		if err != nil {
			return userError(err)
		}

		printSearchResults(cmd.OutOrStdout(), results)
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <CODE|URL>",
	Short: "Resolve a share code into a direct download link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		link, err := resolveLink(ctx, cmd, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <CODE|URL>",
	Short: "Resolve a share code and download the file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		resolveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		link, err := resolveLink(resolveCtx, cmd, args[0])
		stop()
		if err != nil {
			return err
		}

		dir := outputDir
		if dir == "" {
			dir = config.DownloadDir
		}

		pool := transfer.NewPool(config.Workers)
		defer pool.Shutdown()

		limiter := newLimiter()
		orchestrator, err := transfer.NewOrchestrator(transfer.Options{
			Fetcher:      transfer.NewHTTPFetcher(newHTTPClient(), limiter),
			Executor:     pool,
			EditInterval: config.EditThrottle(),
			WorkDir:      dir,
			Logger:       internal.GetLogger(),
		})
		if err != nil {
			return err
		}

		msg := newConsoleMessage(cmd.OutOrStdout(), cmd.ErrOrStderr(), config.QuietMode)
		job := orchestrator.Download(ctx, msg, link, dir)
		return jobResult(job)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <PATH|URL> [| NEW_NAME]",
	Short: "Upload a local file or a remote URL to your account",
	Long: `Upload a local file, an http(s):// URL or an s3://bucket/key object.

Append "| new_name" to rename the file before it is uploaded. Remote sources
are fetched into a temporary directory and removed afterwards.

Examples:
  uptofetch upload ./video.mkv
  uptofetch upload "./video.mkv | holiday.mkv"
  uptofetch upload https://example.com/archive.zip
  uptofetch upload s3://backups/2024/db.tar.gz`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		input := joinArgs(args)

		httpClient := newHTTPClient()
		limiter := newLimiter()

		client, err := newUptoboxClient(httpClient, limiter)
		if err != nil {
			return err
		}

		pool := transfer.NewPool(config.Workers)
		defer pool.Shutdown()

		orchestrator, err := transfer.NewOrchestrator(transfer.Options{
			Uploader:     client,
			Fetcher:      newSourceFetcher(ctx, httpClient, limiter),
			Executor:     pool,
			EditInterval: config.EditThrottle(),
			Logger:       internal.GetLogger(),
		})
		if err != nil {
			return err
		}

		msg := newConsoleMessage(cmd.OutOrStdout(), cmd.ErrOrStderr(), config.QuietMode)
		job := orchestrator.Upload(ctx, msg, transfer.Request{Input: input})
		return jobResult(job)
	},
}

// resolveLink runs the link negotiation with a console wait prompt
func resolveLink(ctx context.Context, cmd *cobra.Command, code string) (string, error) {
	client, err := newUptoboxClient(newHTTPClient(), nil)
	if err != nil {
		return "", err
	}

	handler := newConsoleWaitHandler(cmd.InOrStdin(), cmd.ErrOrStderr(), config.AssumeYes)
	link, err := client.ResolveDownloadLink(ctx, internal.ShareCode(code), handler)
	if err != nil {
		return "", userError(err)
	}
	return link, nil
}

// newSourceFetcher routes http(s) URLs to the HTTP fetcher and s3 URLs to
// the S3 fetcher when an AWS configuration can be loaded.
func newSourceFetcher(ctx context.Context, httpClient *utils.HTTPClient, limiter internal.RateLimiter) internal.Fetcher {
	router := transfer.NewSchemeFetcher().
		Register(transfer.NewHTTPFetcher(httpClient, limiter), "http", "https")

	s3Fetcher, err := transfer.NewS3Fetcher(ctx, config.S3, limiter)
	if err != nil {
		internal.LogWarn("s3:// sources disabled: %v", err)
		return router
	}
	return router.Register(s3Fetcher, "s3")
}

func printSearchResults(out io.Writer, results []internal.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No files found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tCODE")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, utils.SizeLabel(r.Size), r.Code)
	}
	w.Flush()
}

// jobResult turns a finished job into the command's exit status. The job has
// already reported through its status message.
func jobResult(job *transfer.Job) error {
	if job.State() == transfer.StateCompleted {
		return nil
	}
	internal.LogDebug("job %s ended %s", job.ID(), job.State())
	return errReported
}

// userError logs err in full and returns the short form with its suggestion
func userError(err error) error {
	internal.LogErr(err)

	var ue *internal.UptoboxError
	if errors.As(err, &ue) {
		if ue.Suggestion != "" {
			return fmt.Errorf("%s\n\nSuggestion: %s", ue.Reason(), ue.Suggestion)
		}
		return errors.New(ue.Reason())
	}
	return err
}

// joinArgs rebuilds an input split by the shell, so that
// `upload ./a.bin "|" b.bin` reads like "./a.bin | b.bin".
func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func init() {
	searchCmd.Flags().StringVarP(&searchPath, "path", "p", "//", "Folder to search in")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "Maximum number of results")

	getCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to save the file in (default: download_dir)")
}
