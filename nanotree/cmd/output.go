package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/nanotree/nanotree"
	"github.com/arthur-debert/nanotree/types"
)

// printer renders command results in the configured format
type printer struct {
	w             io.Writer
	format        string
	positionField string
}

func (cli *CLI) printer() printer {
	return printer{
		w:             cli.out,
		format:        cli.viperInst.GetString("format"),
		positionField: cli.tree.Config().PositionField,
	}
}

// structured writes v as JSON or YAML. It reports false for table output.
func (p printer) structured(v interface{}) (bool, error) {
	switch p.format {
	case "json":
		encoder := json.NewEncoder(p.w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(v)
	case "yaml":
		// go through JSON so custom marshalers and json tags apply
		raw, err := json.Marshal(v)
		if err != nil {
			return true, fmt.Errorf("failed to encode result: %w", err)
		}
		var plain interface{}
		if err := json.Unmarshal(raw, &plain); err != nil {
			return true, fmt.Errorf("failed to encode result: %w", err)
		}
		encoder := yaml.NewEncoder(p.w)
		encoder.SetIndent(2)
		if err := encoder.Encode(plain); err != nil {
			return true, err
		}
		return true, encoder.Close()
	default:
		return false, nil
	}
}

func (p printer) nodes(nodes []types.Node) error {
	values := make([]map[string]interface{}, len(nodes))
	for i, n := range nodes {
		values[i] = n.ToMap(p.positionField)
	}
	if done, err := p.structured(values); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPARENT\tPATH\tPOSITION\tDATA")
	for _, n := range nodes {
		position := "-"
		if n.Position != nil {
			position = fmt.Sprintf("%d", *n.Position)
		}
		parent := n.ParentID()
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, parent, n.Path, position, formatData(n.Data))
	}
	return tw.Flush()
}

func (p printer) node(n *types.Node) error {
	if n == nil {
		if done, err := p.structured(nil); done {
			return err
		}
		_, err := fmt.Fprintln(p.w, "(none)")
		return err
	}
	if done, err := p.structured(n.ToMap(p.positionField)); done {
		return err
	}
	return p.nodes([]types.Node{*n})
}

func (p printer) forest(forest []*nanotree.TreeNode) error {
	if done, err := p.structured(forest); done {
		return err
	}
	var walk func(level []*nanotree.TreeNode, depth int)
	walk = func(level []*nanotree.TreeNode, depth int) {
		for _, tn := range level {
			label := tn.Node.ID
			if name, ok := tn.Node.Data["name"]; ok && fmt.Sprint(name) != label {
				label = fmt.Sprintf("%s (%v)", label, name)
			}
			for field, ref := range tn.Populated {
				if ref != nil {
					label = fmt.Sprintf("%s %s=%s", label, field, ref.Path)
				}
			}
			fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", depth), label)
			walk(tn.Children, depth+1)
		}
	}
	walk(forest, 0)
	return nil
}

func (p printer) cascade(res nanotree.CascadeResult) error {
	if done, err := p.structured(res); done {
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Operation:\t%s\n", res.Op)
	fmt.Fprintf(tw, "Status:\t%s\n", res.Status)
	fmt.Fprintf(tw, "Matched:\t%d\n", res.Matched)
	fmt.Fprintf(tw, "Updated:\t%d\n", res.Updated)
	if res.Relinked > 0 {
		fmt.Fprintf(tw, "Relinked:\t%d\n", res.Relinked)
	}
	fmt.Fprintf(tw, "Removed:\t%d\n", res.Removed)
	if len(res.Unresolved) > 0 {
		fmt.Fprintf(tw, "Unresolved:\t%s\n", strings.Join(res.Unresolved, ", "))
	}
	return tw.Flush()
}

func (p printer) scalar(key string, value interface{}) error {
	if done, err := p.structured(map[string]interface{}{key: value}); done {
		return err
	}
	_, err := fmt.Fprintln(p.w, value)
	return err
}

func formatData(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(parts, " ")
}
