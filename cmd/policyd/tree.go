package main

import (
	"fmt"
	"strings"

	"github.com/bluesky-social/modpolicy/policy/graph"

	"github.com/xlab/treeprint"
)

func graphTree(g *graph.Graph) treeprint.Tree {
	tree := treeprint.NewWithRoot(fmt.Sprintf("policy (%d rules)", g.RuleCount()))
	for _, run := range g.Runs {
		rb := tree.AddMetaBranch("run", run.Name)
		if run.AuthorFilter != nil || run.ItemFilter != nil {
			rb.AddMetaNode("filtered", filterSummary(run.AuthorFilter != nil, run.ItemFilter != nil))
		}
		for _, check := range run.Checks {
			meta := check.Condition
			if check.Kind != "" {
				meta = check.Kind + " " + meta
			}
			if !check.Enabled {
				meta += " disabled"
			}
			cb := rb.AddMetaBranch(meta, check.Name)
			if check.AuthorFilter != nil || check.ItemFilter != nil {
				cb.AddMetaNode("filtered", filterSummary(check.AuthorFilter != nil, check.ItemFilter != nil))
			}
			addNodes(cb, check.Rules)
			for _, action := range check.Actions {
				label := action.Kind
				if action.Name != "" {
					label = action.Name + " (" + action.Kind + ")"
				}
				cb.AddMetaNode("action", label)
			}
			cb.AddMetaNode("then", fmt.Sprintf("trigger: %s, fail: %s", check.PostTrigger, check.PostFail))
		}
	}
	return tree
}

func addNodes(branch treeprint.Tree, nodes []graph.Node) {
	for _, node := range nodes {
		switch n := node.(type) {
		case *graph.Rule:
			branch.AddMetaNode(n.Kind, fmt.Sprintf("%s [%s]", n.Label(), shortPremise(n.Premise)))
		case *graph.RuleSet:
			addNodes(branch.AddMetaBranch(n.Condition, "rule set"), n.Rules)
		}
	}
}

func filterSummary(author, item bool) string {
	var parts []string
	if author {
		parts = append(parts, "authorIs")
	}
	if item {
		parts = append(parts, "itemIs")
	}
	return strings.Join(parts, ", ")
}

func shortPremise(p string) string {
	if len(p) > 8 {
		return p[:8]
	}
	return p
}
