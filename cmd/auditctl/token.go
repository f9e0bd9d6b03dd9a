package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapgallery/backoffice/internal/auth"
	"github.com/snapgallery/backoffice/internal/rbac"
)

func newTokenCmd() *cobra.Command {
	var (
		role   string
		id     int64
		kind   string
		ttl    time.Duration
		secret string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			parsedRole, ok := rbac.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q, valid roles: %v", role, rbac.Roles())
			}
			p := rbac.Principal{ID: id, Role: parsedRole, Kind: rbac.IdentityKind(kind)}
			token, err := auth.NewSigner(secret).Mint(p, time.Now(), ttl)
			if err != nil {
				return fmt.Errorf("minting token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(rbac.RoleAdmin), "Role carried by the token")
	cmd.Flags().Int64Var(&id, "id", 1, "Identity id (subject)")
	cmd.Flags().StringVar(&kind, "kind", string(rbac.KindAdmin), "Identity kind: admin or user")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&secret, "secret", envOr("JWT_SECRET", ""), "HMAC signing secret")

	return cmd
}
