package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/resolver"
)

func newResolveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <kind> <key...>",
		Short: "Resolve one entity and print it as JSON",
		Long: `Resolve one entity through cache, entity store and remote API and print it as JSON.

Keys:
  guild|user|channel|message|interaction|quote <id>
  member <guild-id> <user-id>
  role <guild-id> <role-id>
  character <user-id> <name>
  marriage <user-id> <user-id>

Example:
  discordlitesync resolve member 81384788765712384 80351110224678912`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return err
			}
			key, err := resolver.ParseKey(kind, args[1:])
			if err != nil {
				return err
			}

			c, err := openCore(opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer c.close(opts.log)

			entity, err := c.resolvers.Resolve(cmd.Context(), kind, key)
			if err != nil {
				return fmt.Errorf("failed to resolve %s %v: %w", kind, key, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entity)
		},
	}
}
