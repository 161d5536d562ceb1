package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/btouchard/tunnelmock/internal/admin"
	"github.com/btouchard/tunnelmock/internal/mockserver"
	"github.com/btouchard/tunnelmock/internal/notify"
	"github.com/btouchard/tunnelmock/internal/store"
)

func newCheckCmd() *cobra.Command {
	var configOnly bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and, unless --config-only, open and close one tunnel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration is valid")
			if configOnly {
				return nil
			}

			setupLogging(cfg)

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			hub := notify.NewHub(notify.NotifierFunc(logEvent))
			if db != nil {
				defer func() { _ = db.Close() }()
				hub.Add(store.NewJournal(db))
			}

			opts, err := mockserver.OptionsFromConfig(cfg, nil, hub, slog.Default())
			if err != nil {
				return err
			}

			start := time.Now()
			ms, err := mockserver.Open(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("opening mock server: %w", err)
			}
			defer func() { _ = ms.Close() }()

			fmt.Fprintf(out, "tunnel established via %s in %s: %s\n",
				ms.Provider(), time.Since(start).Round(time.Millisecond), ms.PublicURL())

			status, err := postDefault(cmd.Context(), ms.PublicURL())
			if err != nil {
				return fmt.Errorf("calling /default through the tunnel: %w", err)
			}
			fmt.Fprintf(out, "POST /default through the tunnel returned %d\n", status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&configOnly, "config-only", false, "only validate the configuration")
	return cmd
}

// postDefault uses the relaxed TLS client the tunnel probe uses, so a
// tunnel that passed the probe is not rejected here for its certificate.
func postDefault(ctx context.Context, publicURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, publicURL+"/default", strings.NewReader("{}"))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := admin.InsecureHTTPClient(30 * time.Second).Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
