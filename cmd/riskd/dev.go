package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/peacemap/riskengine/pkg/auth"
	"github.com/peacemap/riskengine/pkg/tlsutil"
)

func newGenCertsCmd() *cobra.Command {
	var (
		hosts  []string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "gen-certs",
		Short: "Write a development CA and gRPC server certificate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := tlsutil.GenerateSelfSignedCert(hosts, outDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s to %s\n", tlsutil.ServerFile, tlsutil.ServerKeyFile, outDir)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&hosts, "host", []string{"localhost", "127.0.0.1"}, "DNS names or IPs the certificate is valid for")
	cmd.Flags().StringVar(&outDir, "out", "certs", "output directory")
	return cmd
}

func newGenKeysCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "gen-keys",
		Short: "Write an RSA keypair for signing and validating access tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, pub, err := auth.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", outDir, err)
			}
			if err := os.WriteFile(filepath.Join(outDir, "jwt-private.pem"), priv, 0o600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(filepath.Join(outDir, "jwt-public.pem"), pub, 0o644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote jwt-private.pem and jwt-public.pem to %s\n", outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "keys", "output directory")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject    string
		roles      []string
		privateKey string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with the configured secret or a private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			jwtCfg := auth.JWTConfig{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer, Expiration: ttl}
			if privateKey != "" {
				pem, err := auth.LoadKeyFromFile(privateKey)
				if err != nil {
					return err
				}
				jwtCfg.PrivateKeyPEM = string(pem)
			} else if jwtCfg.Secret == "" {
				return errors.New("auth.jwt_secret is not configured; pass --private-key to sign with RSA")
			}

			for _, r := range roles {
				if !slices.Contains([]string{auth.RoleViewer, auth.RoleAnalyst, auth.RoleAdmin}, r) {
					return fmt.Errorf("unknown role %q", r)
				}
			}

			svc, err := auth.NewJWTService(jwtCfg)
			if err != nil {
				return err
			}
			token, err := svc.GenerateToken(subject, roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "riskd-cli", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleViewer}, "roles to grant (risk:viewer, risk:analyst, risk:admin)")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "PEM RSA private key; the configured HMAC secret is used when empty")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
