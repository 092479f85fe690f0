package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arthur-debert/nanotree/internal/ctxlog"
	"github.com/arthur-debert/nanotree/nanotree"
)

// CLI wires the cobra commands to a tree opened from viper settings
type CLI struct {
	rootCmd   *cobra.Command
	viperInst *viper.Viper
	out       io.Writer
	tree      *nanotree.Tree
	configErr error
}

// NewCLI creates the CLI writing results to out
func NewCLI(out io.Writer) *CLI {
	cli := &CLI{
		viperInst: viper.New(),
		out:       out,
	}
	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// Execute runs the command line in args and releases the collection it opened
func (cli *CLI) Execute(ctx context.Context, args []string) error {
	cli.rootCmd.SetArgs(args)
	cli.rootCmd.SetOut(cli.out)
	err := cli.rootCmd.ExecuteContext(ctx)

	if cli.tree != nil {
		closeErr := cli.tree.Collection().Close()
		cli.tree = nil
		if err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close collection: %w", closeErr)
		}
	}
	return err
}

// setupViperConfig configures config file discovery and environment variables
func (cli *CLI) setupViperConfig() {
	if configFile := os.Getenv("NANOTREE_CONFIG"); configFile != "" {
		cli.viperInst.SetConfigFile(configFile)
	} else {
		cli.viperInst.SetConfigName("nanotree")
		cli.viperInst.SetConfigType("yaml")
		cli.viperInst.AddConfigPath(".")
		cli.viperInst.AddConfigPath("$HOME/.nanotree")
		cli.viperInst.AddConfigPath("/etc/nanotree")
	}

	cli.viperInst.SetEnvPrefix("NANOTREE")
	cli.viperInst.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cli.viperInst.AutomaticEnv()

	// only a missing discovered config file is fine
	if err := cli.viperInst.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cli.configErr = err
		}
	}
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   "nanotree",
		Short: "Nanotree CLI - materialized-path trees over a document collection",
		Long: `Nanotree keeps a tree over a flat collection of documents. Every node stores
its parent id and a path of ancestor ids, so subtrees are prefix queries.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (NANOTREE_*)
3. Configuration file (NANOTREE_CONFIG, ./nanotree.yaml, ~/.nanotree/nanotree.yaml)

Examples:
  # Build a small tree in a JSON file
  nanotree --db family.json add --id Adam --set name=Adam
  nanotree --db family.json add --id Carol --parent Adam

  # Move a subtree and print the result
  nanotree --db family.json move Carol --to Bob
  nanotree --db family.json tree Adam --format yaml

  # Use SQLite with sibling ordering
  nanotree --backend sqlite --db family.db --ordering position Carol 0`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cli.configErr != nil {
				return NewConfigError("read configuration file", cli.configErr.Error(), CommonSuggestions.CheckConfig)
			}

			logger, err := initLogging(cli.viperInst.GetString("log-level"), cli.viperInst.GetBool("verbose"))
			if err != nil {
				return NewConfigError("initialize logging", err.Error(), CommonSuggestions.CheckPerms)
			}
			ctx := ctxlog.WithLogger(cmd.Context(), logger)
			cmd.SetContext(ctx)

			if !needsTree(cmd) {
				return nil
			}

			resolved, err := loadSettings(cli.viperInst)
			if err != nil {
				return err
			}
			opts := resolved.storeOptions()
			opts.Logger = logger

			t, err := nanotree.Open(ctx, opts, resolved.treeConfig())
			if err != nil {
				return WrapError("open tree", err, CommonSuggestions.CheckDB, CommonSuggestions.CheckConfig)
			}
			cli.tree = t
			logger.Debug("tree opened", "backend", string(opts.Backend), "db", opts.Path)
			return nil
		},
	}

	cli.addGlobalFlags()
}

// addGlobalFlags adds the persistent flags and binds them to viper
func (cli *CLI) addGlobalFlags() {
	flags := cli.rootCmd.PersistentFlags()

	// Storage
	flags.StringP("backend", "b", "json", "Collection backend (json|sqlite|mongo|memory)")
	flags.StringP("db", "d", "", "JSON or SQLite file path")
	flags.String("mongo-uri", "", "MongoDB connection URI")
	flags.String("mongo-db", "", "MongoDB database name")
	flags.String("collection", "", "SQLite table or MongoDB collection name")

	// Tree configuration
	flags.String("separator", "", "Path separator character (default #)")
	flags.String("on-delete", "", "Delete policy (DELETE|REPARENT)")
	flags.Int("workers", 0, "Cascade concurrency (default 5)")
	flags.Bool("ordering", false, "Track sibling positions")
	flags.String("position-field", "", "Name of the position field (enables ordering)")
	flags.String("id-type", "", "Identifier type for new nodes (uuid|objectid)")
	flags.Bool("wrap", false, "Return stored nodes instead of plain values in trees")

	// Output
	flags.StringP("format", "f", "table", "Output format (table|json|yaml)")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")
	flags.BoolP("verbose", "v", false, "Also log to stderr")

	for _, name := range settingKeys {
		_ = cli.viperInst.BindPFlag(name, flags.Lookup(name))
	}
}

// annotationNoTree marks commands that run without opening a tree
const annotationNoTree = "nanotree/no-tree"

func needsTree(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoTree] == "true" || c.Name() == "help" || c.Name() == "completion" {
			return false
		}
	}
	return true
}

func main() {
	cli := NewCLI(os.Stdout)
	if err := cli.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
