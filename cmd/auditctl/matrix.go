package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/snapgallery/backoffice/internal/rbac"
)

func newMatrixCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Validate and print a permission matrix",
		Long:  "Loads the matrix from --file (YAML or JSON) or prints the built-in matrix.",
		RunE: func(cmd *cobra.Command, args []string) error {
			matrix, err := loadMatrix(file)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLE\tPERMISSIONS")
			for _, role := range rbac.Roles() {
				granted := matrix.Granted(role)
				names := make([]string, len(granted))
				for i, p := range granted {
					names[i] = string(p)
				}
				fmt.Fprintf(tw, "%s\t%s\n", role, strings.Join(names, ","))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", envOr("RBAC_MATRIX_PATH", ""), "Matrix file to validate")

	return cmd
}

func newCheckCmd() *cobra.Command {
	var (
		role       string
		permission string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one role/permission pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			matrix, err := loadMatrix(file)
			if err != nil {
				return err
			}
			decision := "deny"
			if rbac.NewGate(matrix).Authorize(rbac.Role(role), rbac.Permission(permission)) {
				decision = "allow"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", role, permission, decision)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role to evaluate")
	cmd.Flags().StringVar(&permission, "permission", "", "Permission to evaluate")
	cmd.Flags().StringVarP(&file, "file", "f", envOr("RBAC_MATRIX_PATH", ""), "Matrix file (defaults to the built-in matrix)")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("permission")

	return cmd
}

func loadMatrix(file string) (*rbac.Matrix, error) {
	if file == "" {
		return rbac.DefaultMatrix(), nil
	}
	matrix, err := rbac.LoadMatrixFile(file)
	if err != nil {
		return nil, fmt.Errorf("loading matrix: %w", err)
	}
	return matrix, nil
}
