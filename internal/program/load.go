package program

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/gridwalk/internal/ctxlog"
	"github.com/vk/gridwalk/internal/schema"
)

// fileSchema lists every block a program file may contain. Blocks are
// returned in source order, which is what gives the entry sequence its
// ordering guarantee.
var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "node", LabelNames: []string{"name"}},
		{Type: "edge", LabelNames: []string{"name"}},
		{Type: "walker", LabelNames: []string{"name"}},
		{Type: "object", LabelNames: []string{"name"}},
		{Type: "let", LabelNames: []string{"handle"}},
		{Type: "connect", LabelNames: nil},
		{Type: "spawn", LabelNames: nil},
	},
}

// Load parses a program from a single .hcl file or a directory of them.
// Files load in lexical path order; statements keep source order within a
// file.
func Load(ctx context.Context, path string) (*Program, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := findFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl program files found in %s", path)
	}
	logger.Debug("loading program", "files", files)

	prog := &Program{Table: schema.NewTable()}
	parser := hclparse.NewParser()
	for _, file := range files {
		if err := loadFile(parser, file, prog); err != nil {
			return nil, err
		}
	}
	if err := prog.Table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid archetype table: %w", err)
	}
	logger.Info("program loaded", "archetypes", len(prog.Table.Names()), "entry_statements", len(prog.Entry))
	return prog, nil
}

func loadFile(parser *hclparse.Parser, path string, prog *Program) error {
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse %s: %w", path, diags)
	}
	content, diags := hclFile.Body.Content(fileSchema)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode %s: %w", path, diags)
	}
	for _, block := range content.Blocks {
		switch block.Type {
		case "node", "edge", "walker", "object":
			arch, err := decodeArchetype(block)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := prog.Table.Add(arch); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		case "let":
			stmt, err := decodeLet(block)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			prog.Entry = append(prog.Entry, stmt)
		case "connect":
			stmt, err := decodeConnect(block)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			prog.Entry = append(prog.Entry, stmt)
		case "spawn":
			stmt, err := decodeSpawn(block)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			prog.Entry = append(prog.Entry, stmt)
		}
	}
	return nil
}

// findFiles accepts a file path or a directory and returns the sorted .hcl
// file list.
func findFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("program path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".hcl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking program path: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
