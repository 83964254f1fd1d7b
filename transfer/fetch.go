package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"uptofetch/internal"
	"uptofetch/utils"
)

const fallbackFileName = "download"

// HTTPFetcher downloads http(s) URLs into a directory
type HTTPFetcher struct {
	client  *utils.HTTPClient
	limiter internal.RateLimiter
	fileOps *utils.FileOperations
}

var _ internal.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. client is used without an overall
// timeout; limiter may be nil.
func NewHTTPFetcher(client *utils.HTTPClient, limiter internal.RateLimiter) *HTTPFetcher {
	if client == nil {
		client = utils.NewHTTPClient()
	}
	return &HTTPFetcher{
		client:  client.Streaming(),
		limiter: limiter,
		fileOps: utils.NewFileOperations(),
	}
}

// Fetch streams rawURL into dir and returns the created file's path. The
// name comes from Content-Disposition, then the URL path. A partial file is
// removed on failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, dir string, observer internal.TransferObserver) (string, error) {
	resp, err := f.client.GetWithContext(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	name := fileNameFromResponse(resp, rawURL)
	return store(ctx, f.fileOps, f.limiter, dir, name, resp.ContentLength, resp.Body, observer)
}

// S3Fetcher downloads s3://bucket/key objects into a directory
type S3Fetcher struct {
	client  *s3.Client
	limiter internal.RateLimiter
	fileOps *utils.FileOperations
}

var _ internal.Fetcher = (*S3Fetcher)(nil)

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// NewS3Fetcher builds an S3 client from cfg. Static keys are used when set;
// otherwise the default AWS credential chain applies.
func NewS3Fetcher(ctx context.Context, cfg internal.S3Config, limiter internal.RateLimiter) (*S3Fetcher, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Fetcher{
		client:  client,
		limiter: limiter,
		fileOps: utils.NewFileOperations(),
	}, nil
}

// Fetch downloads the object named by an s3://bucket/key URL into dir
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL, dir string, observer internal.TransferObserver) (string, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return "", err
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", internal.NewCanceledError("").WithCause(ctx.Err())
		}
		return "", internal.NewRemoteUnavailableError(fmt.Sprintf("failed to get s3://%s/%s", bucket, key), err)
	}
	defer out.Body.Close()

	name := path.Base(key)
	return store(ctx, f.fileOps, f.limiter, dir, name, aws.ToInt64(out.ContentLength), out.Body, observer)
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", internal.NewValidationErrorWithValue("url", "invalid S3 URL", rawURL)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", internal.NewValidationErrorWithValue("url", "expected s3://bucket/key", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", internal.NewValidationErrorWithValue("url", "S3 URL must name an object", rawURL)
	}
	return u.Host, key, nil
}

// SchemeFetcher routes a URL to the fetcher registered for its scheme
type SchemeFetcher struct {
	fetchers map[string]internal.Fetcher
}

var _ internal.Fetcher = (*SchemeFetcher)(nil)

// NewSchemeFetcher creates an empty router
func NewSchemeFetcher() *SchemeFetcher {
	return &SchemeFetcher{fetchers: make(map[string]internal.Fetcher)}
}

// Register routes the given schemes to fetcher
func (s *SchemeFetcher) Register(fetcher internal.Fetcher, schemes ...string) *SchemeFetcher {
	for _, scheme := range schemes {
		s.fetchers[strings.ToLower(scheme)] = fetcher
	}
	return s
}

// Fetch implements internal.Fetcher
func (s *SchemeFetcher) Fetch(ctx context.Context, rawURL, dir string, observer internal.TransferObserver) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", internal.NewValidationErrorWithValue("url", "invalid URL", rawURL)
	}

	fetcher, ok := s.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return "", internal.NewValidationErrorWithValue("url", "unsupported URL scheme", u.Scheme)
	}
	return fetcher.Fetch(ctx, rawURL, dir, observer)
}

// store copies body into a new file in dir, feeding progress to observer
func store(ctx context.Context, fileOps *utils.FileOperations, limiter internal.RateLimiter, dir, name string, size int64, body io.Reader, observer internal.TransferObserver) (string, error) {
	if valid, err := utils.ValidateFileName(name); err == nil {
		name = valid
	} else {
		name = fallbackFileName
	}

	file, err := fileOps.CreateUnique(dir, name)
	if err != nil {
		return "", internal.NewLocalFileError(dir, "failed to create file", err)
	}
	localPath := file.Name()

	tracker := utils.NewProgressTracker("Downloading "+name, size)
	reader := utils.NewProgressReader(ctx, body, tracker, observer, limiter)

	_, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		fileOps.RemoveIfExists(localPath)
		var ue *internal.UptoboxError
		if errors.As(copyErr, &ue) {
			return "", ue
		}
		return "", internal.NewRemoteUnavailableError("download interrupted", copyErr)
	}

	return localPath, nil
}

// fileNameFromResponse picks the name announced by the server, falling back
// to the last URL path segment.
func fileNameFromResponse(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}

	var u *url.URL
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL
	} else {
		var err error
		if u, err = url.Parse(rawURL); err != nil {
			return fallbackFileName
		}
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return fallbackFileName
	}
	return name
}
