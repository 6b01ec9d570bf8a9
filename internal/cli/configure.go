package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/harun/toolgate/internal/config"
	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/pkg/permission"
	"github.com/spf13/cobra"
)

var (
	initForce   bool
	addUserID   string
	addUserRole string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Create and inspect the configuration",
}

var configureInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigureInit,
}

var configureShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigureShow,
}

var configureAddUserCmd = &cobra.Command{
	Use:   "add-user",
	Short: "Add an HTTP caller and print its generated bearer token",
	Args:  cobra.NoArgs,
	RunE:  runConfigureAddUser,
}

func init() {
	configureInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	configureAddUserCmd.Flags().StringVar(&addUserID, "id", "", "caller id (required)")
	configureAddUserCmd.Flags().StringVar(&addUserRole, "role", string(permission.RoleUser), "caller role (demo, user, admin)")
	configureAddUserCmd.MarkFlagRequired("id")

	configureCmd.AddCommand(configureInitCmd, configureShowCmd, configureAddUserCmd)
	rootCmd.AddCommand(configureCmd)
}

func runConfigureInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}

	if err := loader.Save(config.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Add a caller with: toolgate configure add-user --id <id> --role user")
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s %v\n", red("invalid:"), err)
	}
	return nil
}

func runConfigureAddUser(cmd *cobra.Command, args []string) error {
	role, err := permission.ParseRole(addUserRole)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addUserID)

	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	for _, u := range cfg.Users {
		if u.ID == id {
			return fmt.Errorf("user %s already exists", id)
		}
	}

	token := "tg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	cfg.Users = append(cfg.Users, config.UserConfig{Token: token, ID: id, Role: string(role)})

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	audit := observability.NewAuditLogger(cmd.ErrOrStderr())
	if cfg.Audit.File != "" {
		if fileAudit, err := observability.OpenAuditLogger(cfg.Audit.File); err == nil {
			audit = fileAudit
			defer audit.Close()
		}
	}
	audit.RecordConfig(context.Background(), "add_user", "cli", map[string]interface{}{
		"user_id": id,
		"role":    string(role),
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", bold(id), role)
	fmt.Fprintf(cmd.OutOrStdout(), "Bearer token: %s\n", token)
	return nil
}
