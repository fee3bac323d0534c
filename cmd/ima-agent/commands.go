package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ima-agent/internal/app/models"
	"ima-agent/internal/app/routers"
	"ima-agent/internal/app/services"
	"ima-agent/internal/pkg/logger"
	"ima-agent/pkg/config"
	"ima-agent/pkg/util"
)

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "ima-agent",
		Short:         "Ask questions against an IMA knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(cfgFile); err != nil {
				return err
			}
			return logger.Setup(config.GetLogConf())
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml)")
	root.AddCommand(newServeCmd(), newAskCmd(), newRefreshCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := services.Init(ctx); err != nil {
				return err
			}
			srv := &http.Server{
				Addr:    config.GetServerConf().Addr,
				Handler: routers.SetUp(),
			}
			errCh := make(chan error, 1)
			go func() {
				log.Infof("http server listening on %s", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			log.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		},
	}
}

func newAskCmd() *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := services.Init(ctx); err != nil {
				return err
			}
			res, st, err := services.ImaClient.AskWithState(ctx, models.AskParams{
				Question:  strings.Join(args, " "),
				SessionID: sessionID,
			})
			if err != nil {
				if st != nil {
					return fmt.Errorf("trace %s: %w", st.TraceID, err)
				}
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				fmt.Fprintln(out, util.GetJson(models.AskReply{
					TraceID:    st.TraceID,
					Answer:     util.TidyText(res.Answer),
					References: res.References,
					Attempts:   st.Attempt,
				}))
				return nil
			}
			fmt.Fprintln(out, renderResult(res))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "reuse an existing session id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := services.Init(ctx); err != nil {
				return err
			}
			creds, err := services.Store.Refresh(ctx, services.Store.Get())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token refreshed for %s, expires at %s\n",
				creds.UserID, creds.ExpiresAt().Format(time.RFC3339))
			return nil
		},
	}
}

func renderResult(res *models.Result) string {
	var b strings.Builder
	b.WriteString(util.TidyText(res.Answer))
	if len(res.References) > 0 {
		b.WriteString("\n\n参考资料:\n")
		for i, ref := range res.References {
			fmt.Fprintf(&b, "%d. %s", i+1, ref.Title)
			if ref.Locator != "" {
				fmt.Fprintf(&b, " (%s)", ref.Locator)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
