// Command gh-api talks to the GitHub REST API from the shell: single
// requests, paginated listings, and a local forwarding proxy.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jwodder/ghreq/pkg/client"
	"github.com/jwodder/ghreq/pkg/logging"
	"github.com/jwodder/ghreq/pkg/pagination"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	apiURL        string
	token         string
	userAgent     string
	redisAddr     string
	logLevel      string
	pretty        bool
	retries       int
	mutationDelay time.Duration
	timeout       time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "gh-api",
		Short:         "GitHub REST API client",
		Long:          "gh-api dispatches requests against the GitHub REST API with retries, rate-limit-aware backoff, and pagination.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logging.Config{
				Level:  logging.LogLevel(opts.logLevel),
				Pretty: opts.pretty,
				Output: os.Stderr,
			})
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api-url", "", "base API URL (default: $GITHUB_API_URL or "+client.DefaultAPIURL+")")
	flags.StringVar(&opts.token, "token", getEnv("GITHUB_TOKEN", ""), "bearer token (default: $GITHUB_TOKEN)")
	flags.StringVar(&opts.userAgent, "user-agent", "", "User-Agent header override")
	flags.StringVar(&opts.redisAddr, "redis", "", "Redis address for mirroring rate-limit state (optional)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", false, "human-readable log output")
	flags.IntVar(&opts.retries, "retries", 10, "retry attempts per request")
	flags.DurationVar(&opts.mutationDelay, "mutation-delay", time.Second, "minimum spacing between mutating requests")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall timeout per command (0 = none)")

	cmd.AddCommand(
		newRequestCmd(opts),
		newPaginateCmd(opts),
		newRateLimitCmd(opts),
		newServeCmd(opts),
	)

	return cmd
}

// buildClient assembles a client from the persistent flags.
func buildClient(ctx context.Context, opts *rootOptions) (*client.Client, error) {
	cfg := client.DefaultConfig()
	cfg.BaseURL = opts.apiURL
	cfg.Token = opts.token
	cfg.UserAgent = opts.userAgent
	cfg.MutationDelay = opts.mutationDelay
	cfg.Retry.Retries = opts.retries

	if opts.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		cfg.Redis = rdb
	}

	return client.New(cfg)
}

// commandContext applies the --timeout flag to the command context.
func commandContext(cmd *cobra.Command, opts *rootOptions) (context.Context, context.CancelFunc) {
	if opts.timeout > 0 {
		return context.WithTimeout(cmd.Context(), opts.timeout)
	}
	return context.WithCancel(cmd.Context())
}

func newRequestCmd(opts *rootOptions) *cobra.Command {
	var headers []string
	var queries []string
	var data string
	var raw bool

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Dispatch a single request and print the response body",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			gh, err := buildClient(ctx, opts)
			if err != nil {
				return err
			}
			defer gh.Close()

			reqOpts, err := requestOptions(headers, queries)
			if err != nil {
				return err
			}

			var body any
			if data != "" {
				body = json.RawMessage(data)
			}

			if raw {
				resp, err := gh.RequestRaw(ctx, args[0], args[1], body, reqOpts...)
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				_, err = io.Copy(os.Stdout, resp.Body)
				return err
			}

			var out json.RawMessage
			if err := gh.Request(ctx, args[0], args[1], body, &out, reqOpts...); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "query parameter as 'key=value' (repeatable)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the body verbatim without decoding")

	return cmd
}

func newPaginateCmd(opts *rootOptions) *cobra.Command {
	var headers []string
	var queries []string
	var batch bool
	var perPage int
	var concurrency int

	cmd := &cobra.Command{
		Use:   "paginate PATH",
		Short: "Iterate a paginated listing, one JSON item per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			gh, err := buildClient(ctx, opts)
			if err != nil {
				return err
			}
			defer gh.Close()

			w := cmd.OutOrStdout()

			if batch {
				fetcher := pagination.NewBatchFetcher(
					&pagination.ClientFetcher{Client: gh, PerPage: perPage},
					pagination.Config{MaxConcurrency: concurrency},
				)
				items, err := fetcher.FetchAll(ctx, args[0])
				if err != nil {
					return err
				}
				for _, item := range items {
					fmt.Fprintln(w, string(item))
				}
				return nil
			}

			reqOpts, err := requestOptions(headers, queries)
			if err != nil {
				return err
			}
			it := gh.Paginate(args[0], reqOpts...)
			for it.Next(ctx) {
				fmt.Fprintln(w, string(it.Value()))
			}
			return it.Err()
		},
	}

	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "query parameter as 'key=value' (repeatable)")
	cmd.Flags().BoolVar(&batch, "batch", false, "fetch pages in parallel using the Link rel=\"last\" page count")
	cmd.Flags().IntVar(&perPage, "per-page", 100, "page size for --batch")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel page fetches for --batch")

	return cmd
}

func newRateLimitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rate-limit",
		Short: "Print the current rate limit state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			gh, err := buildClient(ctx, opts)
			if err != nil {
				return err
			}
			defer gh.Close()

			var out json.RawMessage
			if err := gh.Get(ctx, "/rate_limit", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local proxy forwarding /gh/* to the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gh, err := buildClient(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer gh.Close()

			logger := logging.NewLogger("gh-api")

			mux := http.NewServeMux()
			mux.HandleFunc("/health", healthHandler)
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/gh/", proxyHandler(gh, logger))

			srv := &http.Server{Addr: ":" + port, Handler: mux}

			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			logger.Info().Str("addr", srv.Addr).Msg("Starting proxy server")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", getEnv("PORT", "8080"), "listen port")

	return cmd
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// proxyHandler forwards an incoming request to the API through the client,
// preserving method, path, query, body, and the response verbatim.
func proxyHandler(gh *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/gh")
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		var reqOpts []client.RequestOption
		if r.Body != nil {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, fmt.Sprintf("read request body: %v", err), http.StatusBadRequest)
				return
			}
			if len(body) > 0 {
				reqOpts = append(reqOpts, client.WithRawBody(body))
				if ct := r.Header.Get("Content-Type"); ct != "" {
					reqOpts = append(reqOpts, client.WithHeader("Content-Type", ct))
				}
			}
		}

		resp, err := gh.RequestRaw(r.Context(), r.Method, path, nil, reqOpts...)
		if err != nil {
			http.Error(w, fmt.Sprintf("request failed: %v", err), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Warn().Err(err).Msg("Failed to write proxied response")
		}
	}
}

// requestOptions converts header/query flag values into request options.
func requestOptions(headers, queries []string) ([]client.RequestOption, error) {
	var opts []client.RequestOption
	for _, h := range headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", h)
		}
		opts = append(opts, client.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
	}
	for _, q := range queries {
		k, v, ok := strings.Cut(q, "=")
		if !ok {
			return nil, fmt.Errorf("invalid query parameter %q, want 'key=value'", q)
		}
		opts = append(opts, client.WithQuery(k, v))
	}
	return opts, nil
}

// printJSON writes v to stdout, indented when possible.
func printJSON(v json.RawMessage) error {
	if len(v) == 0 {
		return nil
	}
	pretty, err := json.MarshalIndent(json.RawMessage(v), "", "  ")
	if err != nil {
		_, err = os.Stdout.Write(v)
		return err
	}
	_, err = fmt.Println(string(pretty))
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
