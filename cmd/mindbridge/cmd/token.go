package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fitstack/mindbridge/internal/pkg/cache"
	"github.com/fitstack/mindbridge/internal/pkg/database"
	"github.com/fitstack/mindbridge/internal/pkg/mindbody"
	"github.com/fitstack/mindbridge/internal/pkg/tokencache"
)

func newTokenManager() *tokencache.Manager {
	database.SetupDatabase()
	cache.SetupCache()
	return tokencache.NewManager(
		mindbody.NewClientFromEnv(),
		tokencache.NewRedisStore(),
		tokencache.NewRepository(database.GetDB()),
	)
}

func NewTokenCmd(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "token",
		GroupID: "ops",
		Short:   "Bearer token operations",
	}

	var username, password string
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Obtains (or reuses) a bearer token for the principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := newTokenManager()
			token, err := mgr.GetToken(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	issueCmd.Flags().StringVar(&username, "username", "", "principal username")
	issueCmd.Flags().StringVar(&password, "password", "", "principal password")
	_ = issueCmd.MarkFlagRequired("username")
	_ = issueCmd.MarkFlagRequired("password")

	var revokeUser string
	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revokes all live tokens for a principal and evicts its cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := newTokenManager()
			revoked, err := mgr.RevokeAllForUser(cmd.Context(), revokeUser)
			if err != nil {
				return err
			}
			cmd.Printf("%d token(s) revoked\n", revoked)
			return nil
		},
	}
	revokeCmd.Flags().StringVar(&revokeUser, "username", "", "principal username")
	_ = revokeCmd.MarkFlagRequired("username")

	cmd.AddCommand(issueCmd, revokeCmd)
	parent.AddCommand(cmd)
}
