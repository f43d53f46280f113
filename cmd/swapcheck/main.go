// Command swapcheck runs the storefront adapter against a live product page
// and reports what it would change. It is the quickest way to see whether a
// new theme is detected before enabling an experiment on it.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"pixelswap/pkg/storefront"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	apiURL    string
	productID string
	variantID string
	sessionID string
	output    string
	timeout   time.Duration
	sendEvent bool
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "swapcheck <page-url>",
	Short: "Detect the gallery on a product page and preview the active-case swap",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&apiURL, "api", getEnvOrDefault("PIXELSWAP_API", "http://localhost:8080"), "pixelswap API base URL")
	rootCmd.Flags().StringVar(&productID, "product", "", "catalog product id (required)")
	rootCmd.Flags().StringVar(&variantID, "variant", "", "catalog variant id")
	rootCmd.Flags().StringVar(&sessionID, "session", "swapcheck", "session id used for events")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "write the rewritten page to this file")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "page fetch timeout")
	rootCmd.Flags().BoolVar(&sendEvent, "send-events", false, "post the impression to the API")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	_ = rootCmd.MarkFlagRequired("product")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type discardSink struct{}

func (discardSink) Send(context.Context, storefront.Event) error { return nil }

func run(cmd *cobra.Command, args []string) error {
	log := zap.NewNop()
	if verbose {
		log = zap.Must(zap.NewDevelopment())
	}
	defer log.Sync()

	ctx := cmd.Context()
	pageURL := args[0]

	resp, err := resty.New().SetTimeout(timeout).R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return fmt.Errorf("fetch page: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("fetch page: status %d", resp.StatusCode())
	}

	doc, err := storefront.ParseDocument(strings.NewReader(resp.String()))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}

	client := storefront.NewClient(storefront.ClientOptions{BaseURL: apiURL, Retries: 2})
	var sink storefront.EventSink = discardSink{}
	if sendEvent {
		sink = client
	}

	adapter := storefront.NewAdapter(doc,
		storefront.PageContext{SessionID: sessionID, ProductID: productID, VariantID: variantID, URL: pageURL},
		client, sink, storefront.WithLogger(log))
	out := adapter.Run(ctx)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "phase:      %s\n", out.Phase)
	fmt.Fprintf(w, "theme:      %s\n", out.Theme)
	fmt.Fprintf(w, "slots:      %d\n", out.Slots)
	fmt.Fprintf(w, "mutations:  %d\n", out.Mutations)
	if out.ObservedCase != nil {
		fmt.Fprintf(w, "case:       %s\n", *out.ObservedCase)
	} else {
		fmt.Fprintln(w, "case:       none")
	}
	fmt.Fprintf(w, "add-to-cart targets: %d\n", len(adapter.AddToCartTargets()))

	if output == "" {
		return nil
	}
	rendered, err := storefront.Render(doc)
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return os.WriteFile(output, []byte(rendered), 0o644)
}
