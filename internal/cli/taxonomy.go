package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/taxonomy"
)

// TaxonomyOptions holds flags for the taxonomy command.
type TaxonomyOptions struct {
	*RootOptions
	Database string
	Config   string
	Taxonomy string
	Premise  string
	Concept  string
	Edges    bool
}

// TaxonomyResult summarizes one taxonomy graph.
type TaxonomyResult struct {
	Taxonomy string        `json:"taxonomy"`
	Premise  string        `json:"premise"`
	Edges    int           `json:"edge_count"`
	EdgeList []EdgeResult  `json:"edges,omitempty"`
	Roots    []int32       `json:"roots"`
	Orphans  []int32       `json:"orphans"`
	Cycles   []CycleResult `json:"cycles"`
	Concept  *ConceptNode  `json:"concept,omitempty"`
}

// EdgeResult is one parent/child pair.
type EdgeResult struct {
	Parent int32 `json:"parent"`
	Child  int32 `json:"child"`
}

// CycleResult is one is-a cycle.
type CycleResult struct {
	Path    []int32 `json:"path"`
	Message string  `json:"message"`
}

// ConceptNode is the neighbourhood of the --concept argument.
type ConceptNode struct {
	Ref       string  `json:"ref"`
	Nid       int32   `json:"nid"`
	Parents   []int32 `json:"parents"`
	Children  []int32 `json:"children"`
	Ancestors []int32 `json:"ancestors"`
}

// NewTaxonomyCommand creates the taxonomy command.
func NewTaxonomyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TaxonomyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Build the is-a taxonomy under a named taxonomy coordinate",
		Long: `Build the is-a graph visible from a taxonomy coordinate and report its
roots, orphans and cycles.

Without --config the built-in "master" taxonomy (stated premise, master
path, latest time, active edges) is used.

Example:
  chronicle taxonomy --db ./terms.db --edges
  chronicle taxonomy --db ./terms.db --premise inferred --concept 6b0e4a8c-56a4-4c4e-9d6f-1f2a3b4c5d6e`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaxonomy(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite snapshot database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "directory of CUE coordinate definitions")
	cmd.Flags().StringVarP(&opts.Taxonomy, "taxonomy", "t", "master", "taxonomy name")
	cmd.Flags().StringVar(&opts.Premise, "premise", "", "override the premise (stated|inferred)")
	cmd.Flags().StringVar(&opts.Concept, "concept", "", "report parents, children and ancestors of this concept")
	cmd.Flags().BoolVar(&opts.Edges, "edges", false, "list every edge")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTaxonomy(opts *TaxonomyOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	s, err := openSession(ctx, opts.RootOptions, opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer s.close()

	cfg, err := s.config(opts.Config)
	if err != nil {
		return failLoad(formatter, err)
	}
	tc, err := lookupName("taxonomy", cfg.Taxonomies, opts.Taxonomy)
	if err != nil {
		return failLoad(formatter, err)
	}
	switch opts.Premise {
	case "":
	case "stated":
		tc.Premise = ir.PremiseStated
	case "inferred":
		tc.Premise = ir.PremiseInferred
	default:
		return formatter.Fail(ExitCommandError, ErrCodeTaxonomy, fmt.Sprintf("unknown premise %q", opts.Premise), nil)
	}

	g, err := s.eng.Taxonomy(ctx, tc)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "building taxonomy", err)
	}

	result := TaxonomyResult{
		Taxonomy: opts.Taxonomy,
		Premise:  tc.Premise.String(),
		Edges:    g.EdgeCount(),
		Roots:    nids(g.Roots()),
		Orphans:  nids(g.Orphans()),
		Cycles:   []CycleResult{},
	}
	if opts.Edges {
		for _, e := range g.Edges() {
			result.EdgeList = append(result.EdgeList, EdgeResult{Parent: int32(e.Parent), Child: int32(e.Child)})
		}
	}
	for _, c := range g.Cycles() {
		result.Cycles = append(result.Cycles, CycleResult{Path: nids(c.Path), Message: c.Message})
	}
	if opts.Concept != "" {
		nid, err := s.env().Resolve(opts.Concept)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeUnknownRef, fmt.Sprintf("resolving %q", opts.Concept), err)
		}
		result.Concept = conceptNode(opts.Concept, nid, g)
	}

	return formatter.Success(result, func(w io.Writer) { printTaxonomy(w, result) })
}

func conceptNode(ref string, nid ir.Nid, g *taxonomy.Graph) *ConceptNode {
	return &ConceptNode{
		Ref:       ref,
		Nid:       int32(nid),
		Parents:   nids(g.Parents(nid)),
		Children:  nids(g.Children(nid)),
		Ancestors: nids(g.Ancestors(nid)),
	}
}

func nids(in []ir.Nid) []int32 {
	out := make([]int32, len(in))
	for i, n := range in {
		out[i] = int32(n)
	}
	return out
}

func printTaxonomy(w io.Writer, r TaxonomyResult) {
	fmt.Fprintf(w, "Taxonomy %s (%s): %d edge(s), %d root(s), %d orphan(s), %d cycle(s)\n",
		r.Taxonomy, r.Premise, r.Edges, len(r.Roots), len(r.Orphans), len(r.Cycles))
	for _, e := range r.EdgeList {
		fmt.Fprintf(w, "  %d -> %d\n", e.Child, e.Parent)
	}
	if len(r.Orphans) > 0 {
		fmt.Fprintf(w, "Orphans: %v\n", r.Orphans)
	}
	for _, c := range r.Cycles {
		fmt.Fprintf(w, "Cycle: %s\n", c.Message)
	}
	if n := r.Concept; n != nil {
		fmt.Fprintf(w, "%s (nid %d)\n", n.Ref, n.Nid)
		fmt.Fprintf(w, "  parents:   %v\n", n.Parents)
		fmt.Fprintf(w, "  children:  %v\n", n.Children)
		fmt.Fprintf(w, "  ancestors: %v\n", n.Ancestors)
	}
}
