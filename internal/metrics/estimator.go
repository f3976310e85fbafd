package metrics

import (
	"bytes"
	"context"
	"sync"

	"github.com/repoguard/repoguard/backend/internal/models"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

var languages = map[string]*sitter.Language{
	"go":         golang.GetLanguage(),
	"python":     python.GetLanguage(),
	"typescript": typescript.GetLanguage(),
	"javascript": javascript.GetLanguage(),
	"java":       java.GetLanguage(),
	"kotlin":     kotlin.GetLanguage(),
}

// Node types that add a branch to the control flow. The set is shared
// across grammars; unknown types simply never match.
var branchNodes = map[string]bool{
	"if_statement":                true,
	"for_statement":               true,
	"for_in_statement":            true,
	"while_statement":             true,
	"do_statement":                true,
	"switch_statement":            true,
	"expression_switch_statement": true,
	"type_switch_statement":       true,
	"select_statement":            true,
	"catch_clause":                true,
	"except_clause":               true,
	"conditional_expression":      true,
	"ternary_expression":          true,
	"elif_clause":                 true,
	"when_entry":                  true,
}

// Estimator computes local complexity/maintainability figures for a
// source file. The scan report prefers the model's metrics; this fills
// the gap when the model omits or mangles them.
type Estimator struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

func NewEstimator() *Estimator {
	return &Estimator{parser: sitter.NewParser()}
}

func (e *Estimator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parser.Close()
}

// Estimate returns metrics for the given content. Languages without a
// grammar fall back to a line-count heuristic, so a result is always
// produced.
func (e *Estimator) Estimate(ctx context.Context, content []byte, language string) models.Metrics {
	lines := bytes.Count(content, []byte("\n")) + 1

	lang, ok := languages[language]
	if !ok {
		return lineHeuristic(lines)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.parser.SetLanguage(lang)
	tree, err := e.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return lineHeuristic(lines)
	}
	defer tree.Close()

	branches := countBranches(tree.RootNode())

	complexity := 1 + branches
	maintainability := clamp(100-2*branches-lines/10, 0, 100)
	return models.Metrics{Complexity: complexity, Maintainability: maintainability}
}

func countBranches(n *sitter.Node) int {
	count := 0
	if branchNodes[n.Type()] {
		count++
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		count += countBranches(n.NamedChild(i))
	}
	return count
}

func lineHeuristic(lines int) models.Metrics {
	return models.Metrics{
		Complexity:      1 + lines/25,
		Maintainability: clamp(100-lines/10, 0, 100),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
