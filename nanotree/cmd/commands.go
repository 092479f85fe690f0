package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/nanotree/nanotree"
	"github.com/arthur-debert/nanotree/types"
)

func (cli *CLI) addCommands() {
	cli.rootCmd.AddCommand(
		cli.addCmd(),
		cli.getCmd(),
		cli.moveCmd(),
		cli.positionCmd(),
		cli.compactCmd(),
		cli.deleteCmd(),
		cli.childrenCmd(),
		cli.parentCmd(),
		cli.ancestorsCmd(),
		cli.siblingsCmd(),
		cli.treeCmd(),
		cli.levelCmd(),
		cli.configCmd(),
	)
}

func isNotFound(err error) bool {
	return errors.Is(err, nanotree.ErrNotFound)
}

// load fetches a node by id, turning a miss into a CLI error
func (cli *CLI) load(cmd *cobra.Command, operation, id string) (*types.Node, error) {
	node, err := cli.tree.Get(cmd.Context(), id)
	if err != nil {
		if isNotFound(err) {
			return nil, NewNotFoundError(operation, id, err, CommonSuggestions.CheckID)
		}
		return nil, WrapError(operation, err, CommonSuggestions.CheckDB)
	}
	return node, nil
}

func (cli *CLI) addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a node",
		Long: `Add a node under --parent, or a root when no parent is given.
Without --id a new identifier is generated.`,
		Example: `  nanotree add --id Adam --set name=Adam --set born=1930
  nanotree add --parent Adam --set name=Bob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			parent, _ := cmd.Flags().GetString("parent")
			pairs, _ := cmd.Flags().GetStringArray("set")

			data, err := parseData(pairs)
			if err != nil {
				return err
			}
			var parentID *string
			if parent != "" {
				parentID = types.StringPtr(parent)
			}

			node := types.NewNode(parentID, data)
			node.ID = id
			if err := cli.tree.Save(cmd.Context(), node); err != nil {
				return WrapError("add node", err)
			}
			return cli.printer().node(node)
		},
	}
	cmd.Flags().String("id", "", "Node id (generated when empty)")
	cmd.Flags().StringP("parent", "p", "", "Parent node id")
	cmd.Flags().StringArray("set", nil, "Data field (repeatable): key=value")
	return cmd
}

func (cli *CLI) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := cli.load(cmd, "get node", args[0])
			if err != nil {
				return err
			}
			return cli.printer().node(node)
		},
	}
}

func (cli *CLI) moveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a node and its subtree under another parent",
		Long: `Move a node under --to, or make it a root with --root.
The paths of all descendants are rewritten.`,
		Example: `  nanotree move Carol --to Bob
  nanotree move Carol --root`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			asRoot, _ := cmd.Flags().GetBool("root")
			if (to == "") == !asRoot {
				return NewValidationError("move node", "destination", to, "Use exactly one of --to <id> or --root")
			}

			node, err := cli.load(cmd, "move node", args[0])
			if err != nil {
				return err
			}
			var parentID *string
			if !asRoot {
				parentID = types.StringPtr(to)
			}
			res, err := cli.tree.Reparent(cmd.Context(), node, parentID)
			if err != nil {
				_ = cli.printer().cascade(res)
				return WrapError("move node", err)
			}
			return cli.printer().cascade(res)
		},
	}
	cmd.Flags().String("to", "", "New parent id")
	cmd.Flags().Bool("root", false, "Make the node a root")
	return cmd
}

func (cli *CLI) positionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <id> <index>",
		Short: "Move a node to a position among its siblings",
		Long: `Move a node to a position among its siblings, shifting the siblings in
between. Requires sibling ordering (--ordering or --position-field).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.Atoi(args[1])
			if err != nil {
				return NewValidationError("move to position", "index", args[1], "Use a whole number")
			}
			node, err := cli.load(cmd, "move to position", args[0])
			if err != nil {
				return err
			}
			if err := cli.tree.MoveToPosition(cmd.Context(), node, target); err != nil {
				return WrapError("move to position", err)
			}
			return cli.printer().node(node)
		},
	}
}

func (cli *CLI) compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact [parent-id]",
		Short: "Renumber sibling positions without gaps",
		Long: `Renumber the children of a parent (the roots when no parent is given)
to 0..n-1, keeping their order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var parentID *string
			if len(args) == 1 {
				parentID = types.StringPtr(args[0])
			}
			changed, err := cli.tree.CompactPositions(cmd.Context(), parentID)
			if err != nil {
				return WrapError("compact positions", err)
			}
			return cli.printer().scalar("changed", changed)
		},
	}
}

func (cli *CLI) deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a node",
		Long: `Delete a node. With the DELETE policy the whole subtree goes; with
REPARENT the children move up to the deleted node's parent.`,
		Example: `  nanotree delete Carol
  nanotree delete Carol --policy REPARENT`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := cli.load(cmd, "delete node", args[0])
			if err != nil {
				return err
			}

			policy, _ := cmd.Flags().GetString("policy")
			var res nanotree.CascadeResult
			if policy == "" {
				res, err = cli.tree.Delete(cmd.Context(), node)
			} else {
				res, err = cli.tree.DeleteWithPolicy(cmd.Context(), node, types.DeletePolicy(policy))
			}
			if err != nil {
				_ = cli.printer().cascade(res)
				return WrapError("delete node", err, "Policies are DELETE and REPARENT")
			}
			return cli.printer().cascade(res)
		},
	}
	cmd.Flags().String("policy", "", "Delete policy for this call (DELETE|REPARENT)")
	return cmd
}

func (cli *CLI) childrenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "children <id>",
		Short: "List the children of a node",
		Example: `  nanotree children Adam
  nanotree children Adam --recursive --where "born>1960" --sort born:desc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, opts, err := queryFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			recursive, _ := cmd.Flags().GetBool("recursive")

			node, err := cli.load(cmd, "list children", args[0])
			if err != nil {
				return err
			}
			children, err := cli.tree.GetChildren(cmd.Context(), node, nanotree.ChildrenQuery{
				Filter:    filter,
				Options:   opts,
				Recursive: recursive,
			})
			if err != nil {
				return WrapError("list children", err)
			}
			return cli.printer().nodes(children)
		},
	}
	addQueryFlags(cmd.Flags())
	cmd.Flags().BoolP("recursive", "r", false, "Include all descendants")
	return cmd
}

func (cli *CLI) parentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parent <id>",
		Short: "Show the parent of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := cli.load(cmd, "get parent", args[0])
			if err != nil {
				return err
			}
			parent, err := cli.tree.GetParent(cmd.Context(), node)
			if err != nil {
				return WrapError("get parent", err)
			}
			return cli.printer().node(parent)
		},
	}
}

func (cli *CLI) ancestorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ancestors <id>",
		Short: "List the ancestors of a node, root first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, opts, err := queryFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			node, err := cli.load(cmd, "list ancestors", args[0])
			if err != nil {
				return err
			}
			ancestors, err := cli.tree.GetAncestors(cmd.Context(), node, nanotree.Query{Filter: filter, Options: opts})
			if err != nil {
				return WrapError("list ancestors", err)
			}
			return cli.printer().nodes(ancestors)
		},
	}
	addQueryFlags(cmd.Flags())
	return cmd
}

func (cli *CLI) siblingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siblings <id>",
		Short: "List the siblings of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, opts, err := queryFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			withSelf, _ := cmd.Flags().GetBool("self")

			node, err := cli.load(cmd, "list siblings", args[0])
			if err != nil {
				return err
			}
			q := nanotree.Query{Filter: filter, Options: opts}
			var siblings []types.Node
			if withSelf {
				siblings, err = cli.tree.SiblingsAndSelf(cmd.Context(), node, q)
			} else {
				siblings, err = cli.tree.Siblings(cmd.Context(), node, q)
			}
			if err != nil {
				return WrapError("list siblings", err)
			}
			return cli.printer().nodes(siblings)
		},
	}
	addQueryFlags(cmd.Flags())
	cmd.Flags().Bool("self", false, "Include the node itself")
	return cmd
}

func (cli *CLI) treeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree [root-id]",
		Short: "Print the nested tree below a node, or the whole forest",
		Example: `  nanotree tree
  nanotree tree Adam --format json --omit-empty
  nanotree tree Adam --min-level 3 --populate parent`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, opts, err := queryFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			minLevel, _ := cmd.Flags().GetInt("min-level")
			noRecurse, _ := cmd.Flags().GetBool("no-recurse")
			omitEmpty, _ := cmd.Flags().GetBool("omit-empty")
			populate, _ := cmd.Flags().GetStringSlice("populate")

			var root *types.Node
			if len(args) == 1 {
				if root, err = cli.load(cmd, "build tree", args[0]); err != nil {
					return err
				}
			}
			forest, err := cli.tree.GetChildrenTree(cmd.Context(), root, nanotree.TreeQuery{
				Filter:            filter,
				Options:           opts,
				Populate:          populate,
				MinLevel:          minLevel,
				NoRecurse:         noRecurse,
				OmitEmptyChildren: omitEmpty,
			})
			if err != nil {
				return WrapError("build tree", err)
			}
			return cli.printer().forest(forest)
		},
	}
	addQueryFlags(cmd.Flags())
	cmd.Flags().Int("min-level", 0, "Level of the top nodes")
	cmd.Flags().Bool("no-recurse", false, "Direct children only")
	cmd.Flags().Bool("omit-empty", false, "Leave out empty children lists")
	cmd.Flags().StringSlice("populate", nil, "Fields holding node ids to load")
	return cmd
}

func (cli *CLI) levelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "level <id>",
		Short: "Print the depth of a node (roots are level 1)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := cli.load(cmd, "get level", args[0])
			if err != nil {
				return err
			}
			return cli.printer().scalar("level", cli.tree.Level(node))
		},
	}
}

// configCmd prints the resolved settings without opening a tree
func (cli *CLI) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "config",
		Short:       "Show the resolved configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoTree: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var s settings
			if err := cli.viperInst.Unmarshal(&s); err != nil {
				return NewConfigError("show configuration", err.Error(), CommonSuggestions.CheckConfig)
			}
			resolved := struct {
				Settings   settings `yaml:",inline"`
				ConfigFile string   `yaml:"config-file,omitempty"`
			}{Settings: s, ConfigFile: cli.viperInst.ConfigFileUsed()}

			encoder := yaml.NewEncoder(cli.out)
			encoder.SetIndent(2)
			if err := encoder.Encode(resolved); err != nil {
				return err
			}
			return encoder.Close()
		},
	}
}
