//  Copyright (C) 2021-2023 Chronicle Labs, Inc.
//
//  This program is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Affero General Public License as
//  published by the Free Software Foundation, either version 3 of the
//  License, or (at your option) any later version.
//
//  This program is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Affero General Public License for more details.
//
//  You should have received a copy of the GNU Affero General Public License
//  along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chronicleprotocol/koinos-client/core"
	"github.com/chronicleprotocol/koinos-client/pkg/devnode"
	"github.com/chronicleprotocol/koinos-client/pkg/encoding"
	"github.com/chronicleprotocol/koinos-client/pkg/keys"
)

type options struct {
	RpcURL       []string
	LogLevel     string
	MaxRotations int
	MetricsAddr  string
	Compressed   bool
	Listen       string
	InclusionLag int
}

// Builds provider from given options
func (o *options) provider() (*core.Provider, error) {
	if len(o.RpcURL) == 0 {
		return nil, fmt.Errorf("please provide node url using `--rpc-url` flag")
	}
	return core.NewProvider(o.RpcURL, core.WithMaxRotations(o.MaxRotations))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveMetrics(addr string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(core.Collectors()...)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		logger.Infof("Serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

func newRootCommand() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:           "koinos-client",
		Short:         "Query a Koinos node pool and convert keys and addresses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logger.ParseLevel(opts.LogLevel)
			if err != nil {
				return err
			}
			logger.SetLevel(level)
			if opts.MetricsAddr != "" {
				serveMetrics(opts.MetricsAddr)
			}
			return nil
		},
	}

	root.PersistentFlags().StringArrayVarP(&opts.RpcURL, "rpc-url", "r", []string{}, "Node JSON-RPC url, repeat to add fallback nodes in order")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().IntVar(&opts.MaxRotations, "max-rotations", 0, "Give up after this many node switches, 0 retries forever")
	root.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "[Optional] Address to serve Prometheus metrics on, e.g. `:9090`")

	root.AddCommand(
		&cobra.Command{
			Use:   "head",
			Short: "Print head block information",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := opts.provider()
				if err != nil {
					return err
				}
				head, err := p.GetHeadInfo(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, head)
			},
		},
		&cobra.Command{
			Use:   "nonce <account>",
			Short: "Print the nonce of an account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := opts.provider()
				if err != nil {
					return err
				}
				nonce, err := p.GetNonce(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), nonce)
				return err
			},
		},
		&cobra.Command{
			Use:   "rc <account>",
			Short: "Print the resource credits of an account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := opts.provider()
				if err != nil {
					return err
				}
				rc, err := p.GetAccountRc(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), rc)
				return err
			},
		},
		&cobra.Command{
			Use:   "block <height>",
			Short: "Print the block at a height",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				height, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid height %q: %w", args[0], err)
				}
				p, err := opts.provider()
				if err != nil {
					return err
				}
				block, err := p.GetBlock(cmd.Context(), height)
				if err != nil {
					return err
				}
				return printJSON(cmd, block)
			},
		},
		&cobra.Command{
			Use:   "tx <id>...",
			Short: "Print transactions and the blocks containing them",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := opts.provider()
				if err != nil {
					return err
				}
				txs, err := p.GetTransactionsByID(cmd.Context(), args)
				if err != nil {
					return err
				}
				return printJSON(cmd, txs)
			},
		},
		&cobra.Command{
			Use:   "address <public-key-hex>",
			Short: "Derive the address of a serialized public key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pub, err := encoding.HexToBytes(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), keys.DeriveAddress(pub))
				return err
			},
		},
		newWIFCommand(&opts),
		&cobra.Command{
			Use:   "decode <base58check>",
			Short: "Decode an address or a WIF private key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := keys.DecodeChecksummed(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"kind":       d.Kind.String(),
					"compressed": d.Compressed,
					"payload":    encoding.BytesToHex(d.Payload),
				})
			},
		},
		newDevnodeCommand(&opts),
	)
	return root
}

func newWIFCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wif <private-key-hex>",
		Short: "Encode a private key in wallet import format and print its address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := encoding.HexToBytes(args[0])
			if err != nil {
				return err
			}
			wif, err := keys.PrivateKeyToWIF(priv, opts.Compressed)
			if err != nil {
				return err
			}
			address, err := keys.AddressFromPrivateKey(priv, opts.Compressed)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"wif": wif, "address": address})
		},
	}
	cmd.Flags().BoolVar(&opts.Compressed, "compressed", true, "Use the compressed public key variant")
	return cmd
}

func newDevnodeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devnode",
		Short: "Serve an in-memory node for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			node := devnode.New(devnode.Options{InclusionDelay: opts.InclusionLag})
			defer node.Close()

			server := &http.Server{Addr: opts.Listen, Handler: node, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				_ = server.Shutdown(context.Background())
			}()

			logger.Infof("Serving devnode on %s", opts.Listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", "127.0.0.1:8080", "Address to listen on")
	cmd.Flags().IntVar(&opts.InclusionLag, "inclusion-delay", 2, "Transaction lookups before a submitted transaction is put in a block")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
