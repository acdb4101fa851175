package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rcourtman/crauti-dashboard/internal/config"
	"github.com/rcourtman/crauti-dashboard/internal/display"
	"github.com/rcourtman/crauti-dashboard/internal/models"
	"github.com/rcourtman/crauti-dashboard/internal/resolver"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fetchedConfig serves a single fetched config to the local resolver.
type fetchedConfig models.GlobalConfig

func (f fetchedConfig) Config() models.GlobalConfig { return models.GlobalConfig(f) }

// fetchConfig performs one fetch and normalization outside of the store.
func fetchConfig(ctx context.Context, cfg *config.Config, fromYAML bool) (models.GlobalConfig, error) {
	client := newGatewayClient(cfg)
	fetch := client.FetchConfig
	if fromYAML {
		fetch = client.FetchConfigYAML
	}

	payload, err := fetch(ctx)
	if err != nil {
		return models.GlobalConfig{}, err
	}
	return newNormalizer(cfg).Config(payload.Body)
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	var (
		fromYAML bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the gateway's global configuration",
		Long:  `Fetch the gateway configuration once and print everything except the mount point list, with durations rendered as human strings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(cmd, flags, "cli")
			if err != nil {
				return err
			}

			gw, err := fetchConfig(cmd.Context(), cfg, fromYAML)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), gw)
			}
			text, err := display.GlobalYAML(gw)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}

	cmd.Flags().BoolVar(&fromYAML, "yaml", false, "read the YAML-encoded config endpoint instead of the JSON one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full canonical config as JSON")
	return cmd
}

func newMountPointCmd(flags *globalFlags) *cobra.Command {
	var (
		query  resolver.Query
		remote bool
	)

	cmd := &cobra.Command{
		Use:   "mount-point",
		Short: "Resolve one mount point by path and host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(cmd, flags, "cli")
			if err != nil {
				return err
			}

			var r resolver.Resolver
			if remote {
				r = resolver.NewRemote(newGatewayClient(cfg), newNormalizer(cfg))
			} else {
				gw, err := fetchConfig(cmd.Context(), cfg, false)
				if err != nil {
					return err
				}
				r = resolver.NewLocal(fetchedConfig(gw))
			}

			mp, err := r.Resolve(cmd.Context(), query)
			if err != nil {
				return err
			}
			if !mp.Found() {
				fmt.Fprintf(cmd.OutOrStdout(), "no mount point matches path %q host %q\n", query.Path, query.Host)
				return nil
			}

			view, err := display.NewMountPointView(mp)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), view)
		},
	}

	cmd.Flags().StringVar(&query.Path, "path", "", "mount point path")
	cmd.Flags().StringVar(&query.Host, "host", "", "request host")
	cmd.Flags().BoolVar(&query.RequireHost, "require-host", false, "without --host, only match mount points that apply to any host")
	cmd.Flags().BoolVar(&remote, "remote", false, "resolve through the gateway's mount-point endpoint")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newMountPointsCmd(flags *globalFlags) *cobra.Command {
	var pathGlob, hostGlob string

	cmd := &cobra.Command{
		Use:   "mount-points",
		Short: "List mount points, optionally filtered by wildcard patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(cmd, flags, "cli")
			if err != nil {
				return err
			}

			gw, err := fetchConfig(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}

			views, err := display.MountPointViews(resolver.Filter(gw, pathGlob, hostGlob))
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), views)
		},
	}

	cmd.Flags().StringVar(&pathGlob, "path-glob", "", "wildcard pattern on the mount point path")
	cmd.Flags().StringVar(&hostGlob, "host-glob", "", "wildcard pattern on the match host")
	return cmd
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the admin API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(cmd, flags, "cli")
			if err != nil {
				return err
			}

			client := newGatewayClient(cfg)
			if err := client.Health(cmd.Context()); err != nil {
				return err
			}
			writeable, err := client.Writeable(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gateway: %s\n", client.BaseURL())
			fmt.Fprintln(out, "health: ok")
			fmt.Fprintf(out, "config writeable: %t\n", writeable)
			return nil
		},
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
