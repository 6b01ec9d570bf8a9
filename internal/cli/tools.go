package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/harun/toolgate/pkg/permission"
	"github.com/harun/toolgate/pkg/toolregistry"
	"github.com/spf13/cobra"
)

var (
	listCategory string
	listRole     string
	listJSON     bool

	callArgs    string
	callUser    string
	callRole    string
	callTimeout time.Duration
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List, describe and call registered tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsDescribeCmd = &cobra.Command{
	Use:   "describe <name>",
	Short: "Show a tool's description and input schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsDescribe,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <name>",
	Short: "Call a tool as the given caller",
	Long: `Call a tool by full or short name. Arguments are a JSON object; the
caller's identity and role are taken from --user and --role, never from the
arguments.`,
	Args: cobra.ExactArgs(1),
	RunE: runToolsCall,
}

var toolsBatchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run a JSON array of {name, args} calls concurrently ('-' reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsBatch,
}

func init() {
	toolsListCmd.Flags().StringVar(&listCategory, "category", "", "only list tools in this category")
	toolsListCmd.Flags().StringVar(&listRole, "role", "", "only list tools this role may call (demo, user, admin)")
	toolsListCmd.Flags().BoolVar(&listJSON, "json", false, "print descriptors as JSON")

	for _, c := range []*cobra.Command{toolsCallCmd, toolsBatchCmd} {
		c.Flags().StringVar(&callUser, "user", "cli", "caller id")
		c.Flags().StringVar(&callRole, "role", string(permission.RoleUser), "caller role (demo, user, admin)")
		c.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "call timeout")
	}
	toolsCallCmd.Flags().StringVar(&callArgs, "args", "{}", "arguments as a JSON object")

	toolsCmd.AddCommand(toolsListCmd, toolsDescribeCmd, toolsCallCmd, toolsBatchCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfgFile, logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	var filters []toolregistry.Filter
	if listCategory != "" {
		filters = append(filters, toolregistry.ByCategory(listCategory))
	}
	if listRole != "" {
		role, err := permission.ParseRole(listRole)
		if err != nil {
			return err
		}
		filters = append(filters, toolregistry.VisibleTo(permission.AuthenticatedUser{Role: role}))
	}

	out := cmd.OutOrStdout()
	if listJSON {
		return printJSON(out, a.registry.Descriptors(filters...))
	}

	tools := a.registry.ListTools(filters...)
	if len(tools) == 0 {
		fmt.Fprintln(out, "No tools found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, bold("NAME")+"\t"+bold("ACCESS")+"\t"+bold("CATEGORY")+"\t"+bold("DESCRIPTION"))
	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name(), accessLabel(t), t.Category(), t.Description())
	}
	return tw.Flush()
}

func accessLabel(t *toolregistry.ToolMetadata) string {
	switch {
	case t.RequiresAdmin():
		return red("admin")
	case t.RequiresWrite():
		return yellow("write")
	default:
		return green("read")
	}
}

func runToolsDescribe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfgFile, logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	meta, ok := a.registry.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown tool: %s", args[0])
	}
	return printJSON(cmd.OutOrStdout(), meta.Descriptor())
}

func callerFromFlags() (permission.AuthenticatedUser, error) {
	role, err := permission.ParseRole(callRole)
	if err != nil {
		return permission.AuthenticatedUser{}, err
	}
	if strings.TrimSpace(callUser) == "" {
		return permission.AuthenticatedUser{}, fmt.Errorf("--user cannot be empty")
	}
	return permission.AuthenticatedUser{ID: callUser, Role: role}, nil
}

// callContext is canceled on SIGINT/SIGTERM or after the --timeout
func callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	ctx = tracing.NewRequestContext(ctx)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	caller, err := callerFromFlags()
	if err != nil {
		return err
	}

	var callArguments map[string]any
	if err := json.Unmarshal([]byte(callArgs), &callArguments); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	a, err := newApp(cfgFile, logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := callContext(cmd.Context())
	defer cancel()

	result := a.dispatcher.Dispatch(ctx, args[0], callArguments, caller)
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.OK() {
		return result.Err
	}
	return nil
}

func runToolsBatch(cmd *cobra.Command, args []string) error {
	caller, err := callerFromFlags()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open batch file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var calls []dispatch.Call
	if err := json.NewDecoder(r).Decode(&calls); err != nil {
		return fmt.Errorf("batch must be a JSON array of calls: %w", err)
	}
	for i := range calls {
		calls[i].Caller = caller
	}

	a, err := newApp(cfgFile, logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := callContext(cmd.Context())
	defer cancel()

	results := a.dispatcher.DispatchBatch(ctx, calls)

	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
		}
	}
	if err := printJSON(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(results))
	}
	return nil
}
